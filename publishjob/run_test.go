package publishjob

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/jobstore"
)

type fakeHandleClient struct {
	existing    map[string]*Handle
	createCalls int
	findCalls   int
}

func (f *fakeHandleClient) FindHandle(repoURI string) (*Handle, error) {
	f.findCalls++
	return f.existing[repoURI], nil
}

func (f *fakeHandleClient) CreateHandle(repoURI, publicURL string) (*Handle, error) {
	f.createCalls++
	return &Handle{Prefix: "1903.1", Suffix: "99999", URL: publicURL}, nil
}

func newTestJob(t *testing.T) *jobstore.Job {
	t.Helper()
	store := jobstore.NewStore(t.TempDir())
	job, err := store.CreateJob(&jobstore.Config{JobID: "publish-test", Extra: nil})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

// newPublishFedoraStub simulates a single resource. Its current N-Triples
// body is read from *body at request time, not captured at construction, so
// a test can set it after the server (and so its own URL) exists.
func newPublishFedoraStub(t *testing.T) (srv *httptest.Server, body *string, patches *[]string) {
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

func newTestClient(srv *httptest.Server) *client.Client {
	ep := client.NewEndpoint(srv.URL, "", "/")
	return client.NewClient(ep, srv.Client())
}

func drain(t *testing.T, out <-chan Progress) []Progress {
	t.Helper()
	var all []Progress
	for p := range out {
		all = append(all, p)
	}
	return all
}

func TestRunPublishesResourceAndMintsHandle(t *testing.T) {
	job := newTestJob(t)
	srv, body, patches := newPublishFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/abcdef12-3456-7890-abcd-ef1234567890"
	*body = `<` + uri + `> <http://purl.org/dc/terms/title> "A Thing" .`

	hc := &fakeHandleClient{existing: map[string]*Handle{}}
	engine := NewEngine(newTestClient(srv), job, hc)

	out, result := engine.Run(Options{
		URIs:             []string{uri},
		Action:           ActionPublish,
		PublicURLPattern: "http://digital.example.edu/items/{uuid}",
	})
	progress := drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.State != PublishComplete {
		t.Fatalf("expected PublishComplete, got %s", result.State)
	}
	if len(*patches) != 1 {
		t.Fatalf("expected exactly one PATCH, got %d", len(*patches))
	}
	if hc.createCalls != 1 {
		t.Fatalf("expected CreateHandle to be called once, got %d", hc.createCalls)
	}
	if len(progress) != 1 || progress[0].Status != StatusPublic {
		t.Fatalf("expected a single Public progress event, got %+v", progress)
	}
	if progress[0].Handle != "1903.1/99999" {
		t.Fatalf("expected the minted handle to be reported, got %q", progress[0].Handle)
	}
}

func TestRunPublishReusesExistingHandle(t *testing.T) {
	job := newTestJob(t)
	srv, body, _ := newPublishFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/thing1"
	*body = `<` + uri + `> <http://purl.org/dc/terms/title> "A Thing" .`
	existing := &Handle{Prefix: "1903.1", Suffix: "11111", URL: "http://hdl.handle.net/1903.1/11111"}
	hc := &fakeHandleClient{existing: map[string]*Handle{uri: existing}}
	engine := NewEngine(newTestClient(srv), job, hc)

	out, result := engine.Run(Options{
		URIs:             []string{uri},
		Action:           ActionPublish,
		PublicURLPattern: "http://digital.example.edu/items/{uuid}",
	})
	drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if hc.createCalls != 0 {
		t.Fatalf("expected CreateHandle not to be called when a handle already exists, got %d calls", hc.createCalls)
	}
	if hc.findCalls != 1 {
		t.Fatalf("expected FindHandle to be called once, got %d", hc.findCalls)
	}
}

func TestRunUnpublishRemovesPublishedMarkerWithoutTouchingHandle(t *testing.T) {
	job := newTestJob(t)
	srv, body, patches := newPublishFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/thing1"
	*body = `<` + uri + `> <http://purl.org/dc/terms/title> "A Thing" .
<` + uri + `> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://vocab.lib.umd.edu/access#Published> .`

	engine := NewEngine(newTestClient(srv), job, nil)

	out, result := engine.Run(Options{
		URIs:   []string{uri},
		Action: ActionUnpublish,
	})
	progress := drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.State != UnpublishComplete {
		t.Fatalf("expected UnpublishComplete, got %s", result.State)
	}
	if len(*patches) != 1 {
		t.Fatalf("expected exactly one PATCH removing the Published marker, got %d", len(*patches))
	}
	if len(progress) != 1 || progress[0].Status != StatusUnpublished {
		t.Fatalf("expected an Unpublished progress event, got %+v", progress)
	}
}

func TestRunForceHiddenAddsHiddenMarkerOnPublish(t *testing.T) {
	job := newTestJob(t)
	srv, body, patches := newPublishFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/abcdef12-3456-7890-abcd-ef1234567890"
	*body = `<` + uri + `> <http://purl.org/dc/terms/title> "A Thing" .`

	hc := &fakeHandleClient{existing: map[string]*Handle{}}
	engine := NewEngine(newTestClient(srv), job, hc)

	out, result := engine.Run(Options{
		URIs:             []string{uri},
		Action:           ActionPublish,
		ForceHidden:      true,
		PublicURLPattern: "http://digital.example.edu/items/{uuid}",
	})
	progress := drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if len(*patches) != 1 {
		t.Fatalf("expected exactly one PATCH, got %d", len(*patches))
	}
	if len(progress) != 1 || progress[0].Status != StatusPublished {
		t.Fatalf("expected an UnderEmbargo (published+hidden) status, got %+v", progress)
	}
}

func TestRunSkipsPatchWhenNoMarkerChangeNeeded(t *testing.T) {
	job := newTestJob(t)
	srv, body, patches := newPublishFedoraStub(t)
	defer srv.Close()

	uri := srv.URL + "/thing1"
	*body = `<` + uri + `> <http://purl.org/dc/terms/title> "A Thing" .
<` + uri + `> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://vocab.lib.umd.edu/access#Published> .`
	existing := &Handle{Prefix: "1903.1", Suffix: "22222", URL: "http://hdl.handle.net/1903.1/22222"}
	hc := &fakeHandleClient{existing: map[string]*Handle{uri: existing}}
	engine := NewEngine(newTestClient(srv), job, hc)

	out, result := engine.Run(Options{
		URIs:             []string{uri},
		Action:           ActionPublish,
		PublicURLPattern: "http://digital.example.edu/items/{uuid}",
	})
	drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if len(*patches) != 0 {
		t.Fatalf("expected no PATCH when markers already match, got %d", len(*patches))
	}
}

func TestRunRecordsErrorForMissingResource(t *testing.T) {
	job := newTestJob(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	engine := NewEngine(newTestClient(srv), job, nil)
	out, result := engine.Run(Options{
		URIs:   []string{srv.URL + "/missing"},
		Action: ActionPublish,
	})
	drain(t, out)

	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.Counts.Errors != 1 {
		t.Fatalf("expected one error, got %+v", result.Counts)
	}
	if result.State != PublishIncomplete {
		t.Fatalf("expected PublishIncomplete, got %s", result.State)
	}

	run, err := job.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.FailedItems.Len() != 1 {
		t.Fatalf("expected one dropped-failed entry, got %d", run.FailedItems.Len())
	}
}

func TestConfigFromExtraRoundTrip(t *testing.T) {
	cfg := Config{PublicURLPattern: "http://digital.example.edu/items/{uuid}"}
	got := FromExtra(cfg.ToExtra())
	if got.PublicURLPattern != cfg.PublicURLPattern {
		t.Fatalf("round trip mismatch: %+v vs %+v", cfg, got)
	}
}

func TestPublicURLSubstitutesUUID(t *testing.T) {
	uri := "http://fcrepo.example.edu/fcrepo/rest/ab/cd/ef/gh/abcdef12-3456-7890-abcd-ef1234567890"
	got, err := publicURL("http://digital.example.edu/items/{uuid}", uri)
	if err != nil {
		t.Fatal(err)
	}
	want := "http://digital.example.edu/items/abcdef12-3456-7890-abcd-ef1234567890"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPublicURLErrorsWithoutUUID(t *testing.T) {
	if _, err := publicURL("http://digital.example.edu/items/{uuid}", "http://fcrepo.example.edu/fcrepo/rest/not-a-uuid"); err == nil {
		t.Fatal("expected an error when no UUID is present in the URI")
	}
}
