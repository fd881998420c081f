package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/umd-lib/plastron-go/graph"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	ep := NewEndpoint(srv.URL, "", "/")
	return NewClient(ep, srv.Client()), srv
}

func TestClientGetDescriptionSetsPreferHeader(t *testing.T) {
	var gotPrefer string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		w.Header().Set("Content-Type", "application/n-triples")
		w.Write([]byte(`<http://example.org/s> <http://example.org/p> "o" .`))
	})
	defer srv.Close()

	text, err := c.GetDescription(srv.URL+"/obj1", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if gotPrefer != OmitServerManagedTriples {
		t.Fatalf("expected Prefer header, got %q", gotPrefer)
	}
	if text.MediaType != "application/n-triples" {
		t.Fatalf("unexpected media type: %q", text.MediaType)
	}
}

func TestClientGetGraphParsesResponse(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/n-triples")
		w.Write([]byte(`<http://example.org/s> <http://example.org/p> "o" .`))
	})
	defer srv.Close()

	g, err := c.GetGraph(srv.URL+"/obj1", true)
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 triple, got %d", g.Len())
	}
}

func TestClientGetDescriptionURIFromLinkHeader(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<`+r.Host+`/obj1/fcr:metadata>; rel="describedby"`)
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	descURI, err := c.GetDescriptionURI(srv.URL+"/obj1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if descURI == srv.URL+"/obj1" {
		t.Fatalf("expected describedby rewrite, got unchanged URI %q", descURI)
	}
}

func TestClientCreatePostsUnderDefaultPath(t *testing.T) {
	var gotSlug string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotSlug = r.Header.Get("Slug")
		w.Header().Set("Location", srv200Location(r))
		w.WriteHeader(http.StatusCreated)
	})
	defer srv.Close()

	_, err := c.Create(CreateOptions{Slug: "mything"})
	if err != nil {
		t.Fatal(err)
	}
	if gotSlug != "mything" {
		t.Fatalf("expected Slug header, got %q", gotSlug)
	}
}

func srv200Location(r *http.Request) string {
	return "http://" + r.Host + "/newly-created"
}

func TestClientPatchGraphSendsSPARQLUpdate(t *testing.T) {
	var gotBody string
	var gotContentType string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	deletes := graph.New()
	inserts := graph.New()
	inserts.Add(graph.Triple{
		Subject:   graph.URI("http://example.org/s"),
		Predicate: graph.URI("http://example.org/p"),
		Object:    graph.Literal("o"),
	})

	_, err := c.PatchGraph(srv.URL+"/obj1", deletes, inserts)
	if err != nil {
		t.Fatal(err)
	}
	if gotContentType != "application/sparql-update" {
		t.Fatalf("unexpected content type: %q", gotContentType)
	}
	if gotBody == "" {
		t.Fatal("expected a non-empty SPARQL update body")
	}
}
