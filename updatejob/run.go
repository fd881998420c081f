// Package updatejob implements the update engine (C9): applying a single
// SPARQL Update statement to a set of starting resources, optionally
// walking outward from each one along a fixed list of predicates, with
// per-resource validation and transactional rollback on failure.
package updatejob

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/contentmodel"
	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/internal/plog"
	"github.com/umd-lib/plastron-go/itemlog"
	"github.com/umd-lib/plastron-go/jobstore"
)

// ItemStatus records what happened to a single resource during a run.
type ItemStatus string

const (
	ItemUpdated    ItemStatus = "updated"
	ItemWouldApply ItemStatus = "would_update"
	ItemSkipped    ItemStatus = "skipped"
)

// RunState summarizes how a run ended.
type RunState string

const (
	UpdateComplete   RunState = "update_complete"
	UpdateIncomplete RunState = "update_incomplete"
)

// Counts tallies a run's progress across every seed's traversal.
type Counts struct {
	Resources int
	Updated   int
	Skipped   int
	Invalid   int
	Errors    int
}

// Progress is sent once per resource visited.
type Progress struct {
	Counts  Counts
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
	URIs            []string
	SparqlUpdate    string
	Model           contentmodel.Model // nil disables per-resource validation
	Traverse        []string           // predicate URIs to follow outward from each seed
	DryRun          bool
	UseTransactions bool
}

// Engine is the update job's execution context.
type Engine struct {
	Client *client.TransactionClient
	Job    *jobstore.Job
	Config Config

	logger *plog.ContextLogger
}

// NewEngine builds an Engine, deriving its Config from the job's own
// config.yml Extra fields.
func NewEngine(c *client.TransactionClient, job *jobstore.Job) *Engine {
	return &Engine{
		Client: c,
		Job:    job,
		Config: FromExtra(job.Config.Extra),
		logger: plog.New(nil, map[string]interface{}{"component": "updatejob", "job": job.ID}),
	}
}

// DefaultOptions builds Options from the engine's Config. model, when
// non-nil, enables per-resource validation (the config only records the
// model's registered name; resolving it to a contentmodel.Model is the
// caller's responsibility, mirroring importjob.NewEngine).
func (e *Engine) DefaultOptions(model contentmodel.Model) Options {
	return Options{
		URIs:            e.Config.URIs,
		SparqlUpdate:    e.Config.SparqlUpdate,
		Model:           model,
		Traverse:        e.Config.Traverse,
		UseTransactions: e.Config.UseTransactions,
	}
}

// Run walks each seed URI (and, if Traverse is set, every resource
// reachable from it along those predicates), applies SparqlUpdate to each
// one, and reports progress on the returned channel. The returned Result
// is populated only after the channel is closed.
func (e *Engine) Run(opts Options) (<-chan Progress, *Result) {
	out := make(chan Progress)
	result := &Result{}

	go func() {
		defer close(out)

		run, err := e.Job.NewRun()
		if err != nil {
			result.Err = err
			return
		}

		var completed itemlog.AppendableLog = e.Job.CompletedLog
		if opts.DryRun {
			completed = itemlog.NullLog{}
		}

		e.logger.Debugf("SPARQL Update query:\n====BEGIN====\n%s\n=====END=====", opts.SparqlUpdate)
		if opts.DryRun {
			e.logger.Info("dry run enabled, no actual updates will take place")
		}

		counts := Counts{}

		for _, seed := range opts.URIs {
			visit := func(tc *client.TransactionClient) error {
				return e.walkSeed(tc, seed, opts, run, completed, &counts, out)
			}

			var err error
			if opts.UseTransactions {
				err = client.WithTransaction(e.Client, visit)
			} else {
				err = visit(e.Client)
			}
			if err != nil {
				counts.Errors++
				_ = run.FailedItems.Append(itemlog.Row{
					"id":        seed,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
					"title":     "",
					"uri":       seed,
					"reason":    err.Error(),
				})
				out <- Progress{Counts: counts, Message: fmt.Sprintf("%s: %s", seed, err.Error())}
			}
		}

		result.Counts = counts
		if counts.Errors > 0 || counts.Invalid > 0 {
			result.State = UpdateIncomplete
		} else {
			result.State = UpdateComplete
		}
	}()

	return out, result
}

// walkSeed performs a breadth-first walk outward from seed along
// opts.Traverse, applying the update to every resource visited (skipping
// ones already recorded in completed).
func (e *Engine) walkSeed(tc *client.TransactionClient, seed string, opts Options, run *jobstore.Run, completed itemlog.AppendableLog, counts *Counts, out chan<- Progress) error {
	queue := []string{seed}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		uri := queue[0]
		queue = queue[1:]
		if visited[uri] {
			continue
		}
		visited[uri] = true
		counts.Resources++

		// Read via the embedded Client directly: GetGraph is not one of
		// TransactionClient's overridden verbs, so calling it through tc
		// would promote straight to the embedded Client anyway, reading
		// the resource's publicly committed state rather than anything
		// uncommitted inside the open transaction.
		g, err := tc.Client.GetGraph(uri, false)
		if err != nil {
			return err
		}
		queue = append(queue, childrenOf(g, uri, opts.Traverse)...)

		if completed.Contains(uri) {
			counts.Skipped++
			out <- Progress{Counts: *counts, Message: fmt.Sprintf("%s: already updated, skipping", uri)}
			continue
		}

		status, title, err := e.updateResource(tc, uri, g, opts)
		if err != nil {
			if _, invalid := err.(*perr.ValidationFailure); invalid {
				counts.Invalid++
				_ = run.InvalidItems.Append(itemlog.Row{
					"id":        uri,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
					"title":     title,
					"uri":       uri,
					"reason":    err.Error(),
				})
				out <- Progress{Counts: *counts, Message: fmt.Sprintf("%s: %s", uri, err.Error())}
				continue
			}
			return err
		}

		switch status {
		case ItemUpdated:
			counts.Updated++
			if err := completed.Append(itemlog.Row{
				"id":        uri,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"title":     title,
				"uri":       uri,
				"status":    string(status),
			}); err != nil {
				return err
			}
		case ItemWouldApply:
			// not recorded as completed: a dry run must be repeatable
		}
		out <- Progress{Counts: *counts, Message: fmt.Sprintf("%s: %s", uri, status)}
	}
	return nil
}

// updateResource applies the update to a single resource, optionally
// validating the result. There is no SPARQL Update engine in this module
// to apply the statement in memory before sending it, so when a model is
// given the PATCH is sent first and the resulting graph is re-fetched and
// validated; a validation failure returns a *perr.ValidationFailure, which
// the caller records as invalid rather than as a hard error. Under
// UseTransactions this still rolls the write back, since validation
// happens before the enclosing transaction commits.
func (e *Engine) updateResource(tc *client.TransactionClient, uri string, g *graph.Graph, opts Options) (ItemStatus, string, error) {
	title := titleOf(g)

	if opts.DryRun {
		e.logger.Infof("would update resource %s %s", uri, title)
		return ItemWouldApply, title, nil
	}

	descURI, err := tc.Client.GetDescriptionURI(uri, nil)
	if err != nil {
		return "", title, err
	}

	resp, err := tc.Patch(descURI, map[string]string{"Content-Type": "application/sparql-update"}, strings.NewReader(opts.SparqlUpdate))
	if err != nil {
		return "", title, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", title, perr.NewClientError(descURI, resp.StatusCode, resp.Status)
	}

	if opts.Model != nil {
		// Read back through tc.Get (the overridden verb), not the base
		// Client: the PATCH above has not committed yet, so only a
		// transaction-scoped read observes it.
		updated, err := e.getGraphInScope(tc, uri)
		if err != nil {
			return "", title, err
		}
		report := opts.Model.Validate(updated, graph.URI(uri))
		if !report.Valid() {
			e.logger.Warnf("resource %s failed validation", uri)
			return "", title, &perr.ValidationFailure{Failures: report}
		}
		title = titleOf(updated)
	}

	e.logger.Infof("updated resource %s %s", uri, title)
	return ItemUpdated, title, nil
}

// getGraphInScope fetches and parses uri's N-Triples description using
// tc's overridden Get, so a read inside an open transaction observes that
// transaction's own uncommitted writes.
func (e *Engine) getGraphInScope(tc *client.TransactionClient, uri string) (*graph.Graph, error) {
	headers := map[string]string{
		"Accept": "application/n-triples",
		"Prefer": client.OmitServerManagedTriples,
	}
	resp, err := tc.Get(uri, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, perr.NewClientError(uri, resp.StatusCode, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return graph.ParseNTriples(string(body))
}

// childrenOf returns the URI objects of every triple in g with subject uri
// and a predicate named in traverse.
func childrenOf(g *graph.Graph, uri string, traverse []string) []string {
	if len(traverse) == 0 {
		return nil
	}
	predicates := make(map[string]bool, len(traverse))
	for _, p := range traverse {
		predicates[p] = true
	}
	subject := graph.URI(uri)
	var children []string
	for _, t := range g.Triples() {
		if t.Subject.Equal(subject) && predicates[t.Predicate.Value] && t.Object.IsURI() {
			children = append(children, t.Object.Value)
		}
	}
	return children
}

// titleOf joins every dcterms:title object in g, mirroring the original's
// get_title_string.
func titleOf(g *graph.Graph) string {
	const titlePredicate = "http://purl.org/dc/terms/title"
	var titles []string
	for _, t := range g.Triples() {
		if t.Predicate.Value == titlePredicate {
			titles = append(titles, t.Object.Value)
		}
	}
	return strings.Join(titles, "; ")
}
