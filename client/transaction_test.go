package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransactionBeginCommitLifecycle(t *testing.T) {
	var postCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postCount++
		switch {
		case r.URL.Path == "/fcr:tx":
			w.Header().Set("Location", "http://"+r.Host+"/tx:abc123")
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/tx:abc123/fcr:tx/fcr:commit":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	ep := NewEndpoint(srv.URL, "", "/")
	c := NewClient(ep, srv.Client())
	tc := NewTransactionClient(c)
	tc.KeepAliveInterval = time.Hour // don't let the ticker fire during the test

	if err := tc.Begin(); err != nil {
		t.Fatal(err)
	}
	if !tc.InTransaction() {
		t.Fatal("expected a transaction to be open")
	}
	publicURI := srv.URL + "/res1"
	scoped := tc.InScope(publicURI)
	if scoped == publicURI {
		t.Fatalf("expected rewritten URI, got unchanged %q", scoped)
	}
	if got := tc.OutOfScope(scoped); got != publicURI {
		t.Fatalf("expected OutOfScope to invert InScope, got %q", got)
	}

	if err := tc.Commit(); err != nil {
		t.Fatal(err)
	}
	if tc.InTransaction() {
		t.Fatal("expected transaction to be closed after commit")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	var rolledBack bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fcr:tx":
			w.Header().Set("Location", "http://"+r.Host+"/tx:xyz")
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/tx:xyz/fcr:tx/fcr:rollback":
			rolledBack = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	ep := NewEndpoint(srv.URL, "", "/")
	c := NewClient(ep, srv.Client())
	tc := NewTransactionClient(c)
	tc.KeepAliveInterval = time.Hour

	err := WithTransaction(tc, func(tx *TransactionClient) error {
		return errBoom
	})
	if err == nil {
		t.Fatal("expected an error from the failing body")
	}
	if !rolledBack {
		t.Fatal("expected rollback to have been called")
	}
	if tc.InTransaction() {
		t.Fatal("expected transaction to be closed after rollback")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
