package dispatcher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/publishjob"
)

func newDispatcherDestinations() map[string]string {
	return map[string]string{
		"JOBS":             "/queue/plastron.jobs",
		"SYNCHRONOUS_JOBS": "/queue/plastron.jobs.synchronous",
		"JOB_STATUS":       "/topic/plastron.jobs.status",
		"JOB_PROGRESS":     "/topic/plastron.jobs.progress",
	}
}

// newFedoraStub serves a single resource whose body can be set after the
// server (and so its own URL) exists, the same pattern publishjob's own
// tests use.
func newFedoraStub(t *testing.T) (srv *httptest.Server, body *string, patches *[]string) {
	t.Helper()
	body = new(string)
	patches = new([]string)
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/n-triples")
			w.Write([]byte(*body))
		case r.Method == http.MethodPatch:
			patchBody, _ := io.ReadAll(r.Body)
			*patches = append(*patches, string(patchBody))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	return srv, body, patches
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

// TestListenerProcessesAsyncPublishJob exercises the full async pipeline:
// a message published onto the JOBS destination is persisted to the inbox,
// picked up by the inbox watcher, run through the publish command, and its
// terminal response lands on JOB_STATUS with the outbox and inbox both left
// empty, mirroring the original's crash-safe inbox/outbox choreography.
func TestListenerProcessesAsyncPublishJob(t *testing.T) {
	srv, body, patches := newFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/thing1"
	*body = "<" + uri + `> <http://purl.org/dc/terms/title> "A Thing" .`

	store := jobstore.NewStore(t.TempDir())
	ep := client.NewEndpoint(srv.URL, "", "/")
	deps := Dependencies{
		Store:        store,
		Endpoint:     ep,
		HTTPClient:   srv.Client(),
		HandleClient: nil,
	}

	fake := NewFakeBroker()
	broker := NewBroker(fake, "fake://broker", newDispatcherDestinations())
	pool := NewWorkerPool(2)
	listener, err := NewListener(broker, t.TempDir(), pool, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := listener.Start(); err != nil {
		t.Fatal(err)
	}
	defer listener.Stop()

	jobsDest, _ := broker.Destination("JOBS")
	statusDest, _ := broker.Destination("JOB_STATUS")

	headers := map[string]string{
		headerJobID:              "publish-job-1",
		headerCommand:            "publish",
		argHeaderPrefix + "uris": uri,
	}
	fake.Publish(jobsDest, headers, nil)

	waitFor(t, 2*time.Second, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		for _, s := range fake.Sent {
			if s.Destination == statusDest {
				return true
			}
		}
		return false
	})

	fake.mu.Lock()
	var status *FakeSend
	for i := range fake.Sent {
		if fake.Sent[i].Destination == statusDest {
			status = &fake.Sent[i]
		}
	}
	fake.mu.Unlock()
	if status == nil {
		t.Fatal("expected a terminal response on JOB_STATUS")
	}
	if status.Headers[headerJobID] != "publish-job-1" {
		t.Fatalf("expected job id header to carry through, got %+v", status.Headers)
	}
	if state := status.Headers["PlastronJobState"]; state != string(publishjob.PublishComplete) {
		t.Fatalf("expected publish_complete, got %q (body %s)", state, status.Body)
	}

	var result publishjob.Result
	if err := json.Unmarshal(status.Body, &result); err != nil {
		t.Fatalf("expected the response body to be the marshaled Result: %v", err)
	}
	if result.Counts.Done != 1 || result.Counts.Errors != 0 {
		t.Fatalf("expected one resource processed with no errors, got %+v", result.Counts)
	}
	if len(*patches) != 1 {
		t.Fatalf("expected exactly one PATCH against the repository, got %d", len(*patches))
	}

	ids, err := listener.Outbox.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected the outbox to be empty once the response was sent, got %v", ids)
	}
	ids, err = listener.Inbox.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected the inbox to be empty once the job was processed, got %v", ids)
	}

	progressDest, _ := broker.Destination("JOB_PROGRESS")
	fake.mu.Lock()
	var sawProgress bool
	for _, s := range fake.Sent {
		if s.Destination == progressDest {
			sawProgress = true
		}
	}
	fake.mu.Unlock()
	if !sawProgress {
		t.Fatal("expected at least one progress event on JOB_PROGRESS")
	}
}

// TestListenerProcessesSynchronousJob exercises the synchronous path: the
// response bypasses the inbox/outbox entirely and is sent directly to the
// message's reply-to destination.
func TestListenerProcessesSynchronousJob(t *testing.T) {
	srv, body, _ := newFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/thing2"
	*body = "<" + uri + `> <http://purl.org/dc/terms/title> "Another Thing" .`

	store := jobstore.NewStore(t.TempDir())
	ep := client.NewEndpoint(srv.URL, "", "/")
	deps := Dependencies{Store: store, Endpoint: ep, HTTPClient: srv.Client()}

	fake := NewFakeBroker()
	broker := NewBroker(fake, "fake://broker", newDispatcherDestinations())
	pool := NewWorkerPool(2)
	listener, err := NewListener(broker, t.TempDir(), pool, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := listener.Start(); err != nil {
		t.Fatal(err)
	}
	defer listener.Stop()

	syncDest, _ := broker.Destination("SYNCHRONOUS_JOBS")
	replyTo := "/temp-queue/reply-1"

	headers := map[string]string{
		headerJobID:              "publish-job-2",
		headerCommand:            "unpublish",
		argHeaderPrefix + "uris": uri,
		headerReplyTo:            replyTo,
	}
	fake.Publish(syncDest, headers, nil)

	waitFor(t, 2*time.Second, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		for _, s := range fake.Sent {
			if s.Destination == replyTo {
				return true
			}
		}
		return false
	})

	ids, err := listener.Outbox.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected synchronous jobs to never touch the outbox, got %v", ids)
	}
	ids, err = listener.Inbox.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected synchronous jobs to never touch the inbox, got %v", ids)
	}
}
