package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/perr"
)

// TransactionClient wraps Client with Fedora transaction lifecycle
// management and transparent URI rewriting between the public repository
// URL and the transaction-scoped URL every request must actually use
// while a transaction is open (spec §4.4).
type TransactionClient struct {
	*Client
	KeepAliveInterval time.Duration

	tx *Transaction
}

// NewTransactionClient builds a TransactionClient over an already-built
// Client.
func NewTransactionClient(c *Client) *TransactionClient {
	return &TransactionClient{Client: c, KeepAliveInterval: DefaultKeepAliveInterval}
}

// InTransaction reports whether a transaction is currently open.
func (tc *TransactionClient) InTransaction() bool { return tc.tx != nil }

// Begin opens a new transaction. Nested transactions are rejected, since
// Fedora transactions do not nest.
func (tc *TransactionClient) Begin() error {
	if tc.tx != nil {
		return fmt.Errorf("transaction %s is already open", tc.tx.URI)
	}
	tx, err := beginTransaction(tc.Client, tc.KeepAliveInterval)
	if err != nil {
		return err
	}
	tc.tx = tx
	return nil
}

// Commit commits the open transaction and stops its keep-alive worker.
func (tc *TransactionClient) Commit() error {
	if tc.tx == nil {
		return fmt.Errorf("no open transaction to commit")
	}
	tc.stopKeepAlive()
	resp, err := tc.Client.Post(tc.tx.CommitURL(), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &perr.TransactionFailed{TxURI: tc.tx.URI, Cause: perr.NewClientError(tc.tx.CommitURL(), resp.StatusCode, resp.Status)}
	}
	tc.tx = nil
	return nil
}

// Rollback rolls back the open transaction and stops its keep-alive worker.
func (tc *TransactionClient) Rollback() error {
	if tc.tx == nil {
		return fmt.Errorf("no open transaction to roll back")
	}
	tc.stopKeepAlive()
	resp, err := tc.Client.Post(tc.tx.RollbackURL(), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &perr.TransactionFailed{TxURI: tc.tx.URI, Cause: perr.NewClientError(tc.tx.RollbackURL(), resp.StatusCode, resp.Status)}
	}
	tc.tx = nil
	return nil
}

func (tc *TransactionClient) stopKeepAlive() {
	if tc.tx != nil && tc.tx.keepAlive != nil {
		tc.tx.keepAlive.Stop()
	}
}

// InScope rewrites a public repository URI into its transaction-scoped
// form when a transaction is open, and returns it unchanged otherwise.
func (tc *TransactionClient) InScope(uri string) string {
	if tc.tx == nil {
		return uri
	}
	return withURIPrefix(uri, tc.Client.Endpoint.URL(), tc.tx.URI)
}

// OutOfScope rewrites a transaction-scoped URI back to its public
// repository form. Outside a transaction it returns uri unchanged.
func (tc *TransactionClient) OutOfScope(uri string) string {
	if tc.tx == nil {
		return uri
	}
	return withURIPrefix(uri, tc.tx.URI, tc.Client.Endpoint.URL())
}

func withURIPrefix(uri, oldPrefix, newPrefix string) string {
	if !strings.HasPrefix(uri, oldPrefix) {
		return uri
	}
	return newPrefix + strings.TrimPrefix(uri, oldPrefix)
}

// InsertTransactionURIForGraph rewrites every subject and object in g from
// the public repository URL into the open transaction's scope.
func (tc *TransactionClient) InsertTransactionURIForGraph(g *graph.Graph) {
	if tc.tx == nil {
		return
	}
	g.ForEachSubjectObject(func(t graph.Term) graph.Term {
		return t.WithPrefixReplaced(tc.Client.Endpoint.URL(), tc.tx.URI)
	})
}

// RemoveTransactionURIForGraph rewrites every subject and object in g from
// the transaction's scope back to the public repository URL.
func (tc *TransactionClient) RemoveTransactionURIForGraph(g *graph.Graph) {
	if tc.tx == nil {
		return
	}
	g.ForEachSubjectObject(func(t graph.Term) graph.Term {
		return t.WithPrefixReplaced(tc.tx.URI, tc.Client.Endpoint.URL())
	})
}

// Get, Put, Post, Patch, Head, and Delete override the embedded Client's
// verb methods, rewriting the URL into transaction scope before the
// request and any describedby/Location URIs in the response back out of
// it, so callers never see a transaction-scoped URI.

func (tc *TransactionClient) Get(url string, headers map[string]string) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Get(tc.InScope(url), headers))
}

func (tc *TransactionClient) Head(url string, headers map[string]string) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Head(tc.InScope(url), headers))
}

func (tc *TransactionClient) Post(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Post(tc.InScope(url), headers, body))
}

func (tc *TransactionClient) Put(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Put(tc.InScope(url), headers, body))
}

func (tc *TransactionClient) Patch(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Patch(tc.InScope(url), headers, body))
}

func (tc *TransactionClient) Delete(url string, headers map[string]string) (*http.Response, error) {
	return tc.rewriteResponse(tc.Client.Delete(tc.InScope(url), headers))
}

func (tc *TransactionClient) rewriteResponse(resp *http.Response, err error) (*http.Response, error) {
	if err != nil || resp == nil || tc.tx == nil {
		return resp, err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		resp.Header.Set("Location", tc.OutOfScope(loc))
	}
	if links, ok := resp.Header["Link"]; ok {
		for i, link := range links {
			links[i] = strings.ReplaceAll(link, tc.tx.URI, tc.Client.Endpoint.URL())
		}
	}
	return resp, nil
}

// WithTransaction opens a transaction, runs fn, and commits on success or
// rolls back on failure, always stopping the keep-alive worker before
// returning. This is the idiomatic entry point for transactional work,
// mirroring the original client's context-manager-based transaction scope.
func WithTransaction(tc *TransactionClient, fn func(*TransactionClient) error) (err error) {
	if err := tc.Begin(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tc.Rollback()
			panic(r)
		}
	}()
	if err = fn(tc); err != nil {
		if rbErr := tc.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tc.Commit()
}
