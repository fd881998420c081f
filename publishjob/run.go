// Package publishjob implements the publication engine (C10): toggling the
// published and hidden type markers on a set of resources, and minting or
// retaining a handle for each one published.
package publishjob

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/internal/plog"
	"github.com/umd-lib/plastron-go/itemlog"
	"github.com/umd-lib/plastron-go/jobstore"
)

// RDFType is the predicate used to stamp a resource's access-status markers.
const RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// UMDAccess is the access-status vocabulary used to mark a resource's
// publication and visibility state, shared with the import engine's
// create path so a row published on first creation carries the same
// markers a later publish run would toggle.
const (
	UMDAccessPublished = "http://vocab.lib.umd.edu/access#Published"
	UMDAccessHidden    = "http://vocab.lib.umd.edu/access#Hidden"
)

// Action selects which direction a Run moves each resource.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
)

// PublicationStatus summarizes a resource's marker state after a Run.
type PublicationStatus string

const (
	StatusPublic      PublicationStatus = "Public"
	StatusPublished   PublicationStatus = "UnderEmbargo" // published, but hidden
	StatusUnpublished PublicationStatus = "Unpublished"
)

// RunState summarizes how a run ended, one of the five terminal states
// named in spec §4.10.
type RunState string

const (
	PublishComplete     RunState = "publish_complete"
	PublishIncomplete   RunState = "publish_incomplete"
	UnpublishComplete   RunState = "unpublish_complete"
	UnpublishIncomplete RunState = "unpublish_incomplete"
	StateError          RunState = "error"
)

// Counts tallies a run's progress.
type Counts struct {
	Total  int
	Done   int
	Errors int
}

// Progress is sent once per resource processed.
type Progress struct {
	Counts  Counts
	URI     string
	Handle  string
	Status  PublicationStatus
	Message string
}

// Result is filled in once a Run's channel has closed.
type Result struct {
	Counts Counts
	State  RunState
	Err    error
}

// Options configures a single Run.
type Options struct {
	URIs             []string
	Action           Action
	ForceHidden      bool
	ForceVisible     bool
	PublicURLPattern string
}

// repoClient is the subset of *client.Client (or *client.TransactionClient,
// which inherits it by embedding) that the publication engine needs. No
// transaction wrapping is used here: the original job has no
// use_transactions option, and each resource's marker toggle is a single
// PATCH.
type repoClient interface {
	GetGraph(uri string, includeServerManaged bool) (*graph.Graph, error)
	GetDescriptionURI(uri string, resp *http.Response) (string, error)
	Patch(url string, headers map[string]string, body io.Reader) (*http.Response, error)
}

// Engine is the publication job's execution context.
type Engine struct {
	Client       repoClient
	Job          *jobstore.Job
	Config       Config
	HandleClient HandleClient // only consulted for ActionPublish

	logger *plog.ContextLogger
}

// NewEngine builds an Engine, deriving its Config from the job's own
// config.yml Extra fields. handleClient may be nil if no publish action
// will ever be run against this Engine.
func NewEngine(c repoClient, job *jobstore.Job, handleClient HandleClient) *Engine {
	return &Engine{
		Client:       c,
		Job:          job,
		Config:       FromExtra(job.Config.Extra),
		HandleClient: handleClient,
		logger:       plog.New(nil, map[string]interface{}{"component": "publishjob", "job": job.ID}),
	}
}

// Run toggles the requested marker on every URI in opts.URIs, reporting
// progress on the returned channel. The returned Result is populated only
// after the channel is closed.
func (e *Engine) Run(opts Options) (<-chan Progress, *Result) {
	out := make(chan Progress)
	result := &Result{}

	go func() {
		defer close(out)

		if opts.Action != ActionPublish && opts.Action != ActionUnpublish {
			result.Err = fmt.Errorf("unknown publication action: %q", opts.Action)
			result.State = StateError
			return
		}

		run, err := e.Job.NewRun()
		if err != nil {
			result.Err = err
			return
		}

		counts := Counts{Total: len(opts.URIs)}
		for _, uri := range opts.URIs {
			status, handle, err := e.processResource(uri, opts)
			if err != nil {
				counts.Errors++
				_ = run.FailedItems.Append(itemlog.Row{
					"id": uri, "timestamp": time.Now().UTC().Format(time.RFC3339),
					"title": "", "uri": uri, "reason": err.Error(),
				})
				out <- Progress{Counts: counts, URI: uri, Message: err.Error()}
				continue
			}
			counts.Done++
			handleString := ""
			if handle != nil {
				handleString = handle.String()
			}
			e.logger.Infof("%s %s: now %s (handle %s)", opts.Action, uri, status, handleString)
			out <- Progress{Counts: counts, URI: uri, Handle: handleString, Status: status}
		}

		result.Counts = counts
		result.State = e.finalState(opts.Action, counts)
	}()

	return out, result
}

func (e *Engine) finalState(action Action, c Counts) RunState {
	complete := c.Done >= c.Total
	switch action {
	case ActionPublish:
		if complete {
			return PublishComplete
		}
		return PublishIncomplete
	case ActionUnpublish:
		if complete {
			return UnpublishComplete
		}
		return UnpublishIncomplete
	default:
		return StateError
	}
}

// processResource reads uri's current markers, computes the markers it
// should have after the requested action and force flags, PATCHes the
// difference (if any), and — for a publish action — resolves a handle.
func (e *Engine) processResource(uri string, opts Options) (PublicationStatus, *Handle, error) {
	current, err := e.Client.GetGraph(uri, false)
	if err != nil {
		return "", nil, err
	}

	subject := graph.URI(uri)
	published := current.Contains(graph.Triple{Subject: subject, Predicate: graph.URI(RDFType), Object: graph.URI(UMDAccessPublished)})
	hidden := current.Contains(graph.Triple{Subject: subject, Predicate: graph.URI(RDFType), Object: graph.URI(UMDAccessHidden)})

	switch opts.Action {
	case ActionPublish:
		published = true
	case ActionUnpublish:
		published = false
	}
	if opts.ForceHidden {
		hidden = true
	}
	if opts.ForceVisible {
		hidden = false
	}

	desired := graph.New()
	for _, t := range current.Triples() {
		if t.Predicate.Value == RDFType && (t.Object.Value == UMDAccessPublished || t.Object.Value == UMDAccessHidden) {
			continue
		}
		desired.Add(t)
	}
	if published {
		desired.Add(graph.Triple{Subject: subject, Predicate: graph.URI(RDFType), Object: graph.URI(UMDAccessPublished)})
	}
	if hidden {
		desired.Add(graph.Triple{Subject: subject, Predicate: graph.URI(RDFType), Object: graph.URI(UMDAccessHidden)})
	}

	deletes, inserts := graph.Diff(current, desired)
	if deletes.Len() > 0 || inserts.Len() > 0 {
		descURI, err := e.Client.GetDescriptionURI(uri, nil)
		if err != nil {
			return "", nil, err
		}
		update := graph.BuildSPARQLUpdate(deletes, inserts)
		resp, err := e.Client.Patch(descURI, map[string]string{"Content-Type": "application/sparql-update"}, strings.NewReader(update))
		if err != nil {
			return "", nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return "", nil, perr.NewClientError(descURI, resp.StatusCode, resp.Status)
		}
	}

	var handle *Handle
	if opts.Action == ActionPublish {
		handle, err = MintOrReuseHandle(e.HandleClient, uri, opts.PublicURLPattern)
		if err != nil {
			return "", nil, err
		}
	}

	return statusOf(published, hidden), handle, nil
}

func statusOf(published, hidden bool) PublicationStatus {
	switch {
	case !published:
		return StatusUnpublished
	case hidden:
		return StatusPublished
	default:
		return StatusPublic
	}
}
