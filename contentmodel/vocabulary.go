package contentmodel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/plog"
)

// vocabularyDoc is the shape mirrored into the optional CouchDB-backed
// cache, keyed by the vocabulary's own URI.
type vocabularyDoc struct {
	ID        string   `json:"_id"`
	Rev       string   `json:"_rev,omitempty"`
	Subjects  []string `json:"subjects"`
	FetchedAt string   `json:"fetched_at"`
}

// VocabularyCache fetches a vocabulary's subject URIs on first reference
// and holds them in memory for the lifetime of the process, refreshing only
// on a cache miss. When a CouchDB database is attached via WithCouchDB, a
// miss first checks that shared store before falling back to an HTTP fetch,
// so multiple dispatcher instances reusing the same database see a
// vocabulary fetched once rather than once per process.
type VocabularyCache struct {
	mu     sync.Mutex
	cached map[string]map[string]bool

	httpClient *http.Client
	couchDB    *kivik.DB // nil unless WithCouchDB was called
	logger     *plog.ContextLogger
}

// NewVocabularyCache builds an empty cache backed by httpClient (or
// http.DefaultClient if nil) for remote vocabulary retrieval.
func NewVocabularyCache(httpClient *http.Client) *VocabularyCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VocabularyCache{
		cached:     make(map[string]map[string]bool),
		httpClient: httpClient,
		logger:     plog.New(nil, map[string]interface{}{"component": "vocabulary"}),
	}
}

// WithCouchDB attaches a shared vocabulary-document store, backed by the
// Kivik CouchDB driver, used to avoid redundant remote fetches across
// processes. Pass a client obtained from kivik.New("couch", dsn) and the
// name of a pre-existing database.
func (c *VocabularyCache) WithCouchDB(client *kivik.Client, dbName string) *VocabularyCache {
	db := client.DB(dbName)
	c.couchDB = db
	return c
}

// Subjects returns the set of subject URIs in the vocabulary identified by
// vocabURI, fetching and caching it on first reference.
func (c *VocabularyCache) Subjects(vocabURI string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if subjects, ok := c.cached[vocabURI]; ok {
		return subjects, nil
	}

	if c.couchDB != nil {
		if subjects, ok := c.loadFromCouchDB(vocabURI); ok {
			c.cached[vocabURI] = subjects
			return subjects, nil
		}
	}

	subjects, err := c.fetchRemote(vocabURI)
	if err != nil {
		return nil, err
	}
	c.cached[vocabURI] = subjects

	if c.couchDB != nil {
		c.saveToCouchDB(vocabURI, subjects)
	}
	return subjects, nil
}

// Refresh bypasses the in-memory and CouchDB caches and re-fetches
// vocabURI remotely, replacing whatever was previously cached. Used by the
// from-vocabulary rule when a term is not found in the cached subject set,
// on the chance it was added to the vocabulary after the cache was
// populated.
func (c *VocabularyCache) Refresh(vocabURI string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subjects, err := c.fetchRemote(vocabURI)
	if err != nil {
		return nil, err
	}
	c.cached[vocabURI] = subjects
	if c.couchDB != nil {
		c.saveToCouchDB(vocabURI, subjects)
	}
	return subjects, nil
}

func (c *VocabularyCache) loadFromCouchDB(vocabURI string) (map[string]bool, bool) {
	row := c.couchDB.Get(context.Background(), vocabURI)
	var doc vocabularyDoc
	if err := row.ScanDoc(&doc); err != nil {
		return nil, false
	}
	subjects := make(map[string]bool, len(doc.Subjects))
	for _, s := range doc.Subjects {
		subjects[s] = true
	}
	return subjects, true
}

func (c *VocabularyCache) saveToCouchDB(vocabURI string, subjects map[string]bool) {
	doc := vocabularyDoc{
		ID:        vocabURI,
		Subjects:  make([]string, 0, len(subjects)),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for s := range subjects {
		doc.Subjects = append(doc.Subjects, s)
	}
	if _, err := c.couchDB.Put(context.Background(), vocabURI, doc); err != nil {
		c.logger.Warnf("could not mirror vocabulary %s to CouchDB: %v", vocabURI, err)
	}
}

// fetchRemote retrieves vocabURI over HTTP, requesting N-Triples (the only
// RDF serialization this module's graph package can parse; no Turtle
// parser is available, so a vocabulary's canonical Turtle file, if any, is
// bypassed in favor of content negotiation), and returns its subject set.
func (c *VocabularyCache) fetchRemote(vocabURI string) (map[string]bool, error) {
	req, err := http.NewRequest(http.MethodGet, vocabURI, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot build request for vocabulary %s: %w", vocabURI, err)
	}
	req.Header.Set("Accept", "application/n-triples")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve vocabulary %s: %w", vocabURI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cannot retrieve vocabulary %s: HTTP %d", vocabURI, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read vocabulary %s: %w", vocabURI, err)
	}

	g, err := graph.ParseNTriples(string(body))
	if err != nil {
		return nil, fmt.Errorf("cannot parse vocabulary %s: %w", vocabURI, err)
	}

	subjects := make(map[string]bool)
	for _, t := range g.Triples() {
		if t.Subject.IsURI() {
			subjects[t.Subject.Value] = true
		}
	}
	return subjects, nil
}
