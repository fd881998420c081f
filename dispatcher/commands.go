package dispatcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/contentmodel"
	"github.com/umd-lib/plastron-go/importjob"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/publishjob"
	"github.com/umd-lib/plastron-go/updatejob"
)

// Dependencies are the collaborators every Command needs to build its
// engine: where jobs live, how to reach the repository, and (for publish)
// the handle-minting collaborator.
type Dependencies struct {
	Store        *jobstore.Store
	Endpoint     client.Endpoint
	HTTPClient   *http.Client
	HandleClient publishjob.HandleClient
}

// Command runs one PlastronCommand to completion, streaming progress
// events (already JSON-encoded) and returning the terminal state name and
// response body for the Message sent back to the caller.
type Command interface {
	Execute(deps Dependencies, msg *CommandMessage, progress chan<- []byte) (state string, body []byte, err error)
}

var registry = map[string]Command{
	"import":    importCommand{},
	"update":    updateCommand{},
	"publish":   publishCommand{action: publishjob.ActionPublish},
	"unpublish": publishCommand{action: publishjob.ActionUnpublish},
}

// GetCommand looks up a Command by its PlastronCommand name.
func GetCommand(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

func strtobool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// importCommand dispatches to the bulk create/update engine (C8).
type importCommand struct{}

func (importCommand) Execute(deps Dependencies, msg *CommandMessage, progress chan<- []byte) (string, []byte, error) {
	job, err := loadOrCreateJob(deps, msg, importjob.Config{
		Model:             msg.Args["model"],
		Access:            msg.Args["access"],
		MemberOf:          msg.Args["member-of"],
		Container:         msg.Args["container"],
		BinariesLocation:  msg.Args["binaries-location"],
		SSHPrivateKeyPath: msg.Args["ssh-private-key"],
		PublicURLPattern:  msg.Args["public-url-pattern"],
	}.ToExtra())
	if err != nil {
		return "", nil, err
	}

	if !strtobool(msg.Args["resume"]) {
		if err := os.WriteFile(job.SourceFilename(), msg.Body, 0o644); err != nil {
			return "", nil, err
		}
	}

	model, err := contentmodel.Get(importjob.FromExtra(job.Config.Extra).Model)
	if err != nil {
		return "", nil, err
	}

	tc := client.NewTransactionClient(client.NewClient(deps.Endpoint, deps.HTTPClient))
	engine := importjob.NewEngine(tc, job, model, deps.HandleClient)

	out, result := engine.Run(importjob.Options{
		Limit:        atoiOr(msg.Args["limit"], 0),
		Percentage:   atoiOr(msg.Args["percent"], 0),
		ValidateOnly: strtobool(msg.Args["validate-only"]),
	})
	for p := range out {
		progress <- marshalProgress(p)
	}
	if result.Err != nil {
		return "error", nil, result.Err
	}
	return string(result.State), marshalProgress(result), nil
}

// updateCommand dispatches to the in-place SPARQL update engine (C9).
type updateCommand struct{}

func (updateCommand) Execute(deps Dependencies, msg *CommandMessage, progress chan<- []byte) (string, []byte, error) {
	job, err := loadOrCreateJob(deps, msg, updatejob.Config{
		SparqlUpdate:    string(msg.Body),
		Model:           msg.Args["model"],
		UseTransactions: !strtobool(msg.Args["no-transactions"]),
	}.ToExtra())
	if err != nil {
		return "", nil, err
	}

	cfg := updatejob.FromExtra(job.Config.Extra)
	var model contentmodel.Model
	if cfg.Model != "" {
		model, err = contentmodel.Get(cfg.Model)
		if err != nil {
			return "", nil, err
		}
	}

	tc := client.NewTransactionClient(client.NewClient(deps.Endpoint, deps.HTTPClient))
	engine := updatejob.NewEngine(tc, job)
	opts := engine.DefaultOptions(model)
	if uris := msg.Args["uris"]; uris != "" {
		opts.URIs = strings.Split(uris, ",")
	}
	opts.DryRun = strtobool(msg.Args["dry-run"])

	out, result := engine.Run(opts)
	for p := range out {
		progress <- marshalProgress(p)
	}
	if result.Err != nil {
		return "error", nil, result.Err
	}
	return string(result.State), marshalProgress(result), nil
}

// publishCommand dispatches to the publication engine (C10) for either the
// "publish" or "unpublish" command name.
type publishCommand struct {
	action publishjob.Action
}

func (p publishCommand) Execute(deps Dependencies, msg *CommandMessage, progress chan<- []byte) (string, []byte, error) {
	job, err := loadOrCreateJob(deps, msg, publishjob.Config{
		PublicURLPattern: msg.Args["public-url-pattern"],
	}.ToExtra())
	if err != nil {
		return "", nil, err
	}

	plain := client.NewClient(deps.Endpoint, deps.HTTPClient)
	engine := publishjob.NewEngine(plain, job, deps.HandleClient)

	var uris []string
	if v := msg.Args["uris"]; v != "" {
		uris = strings.Split(v, ",")
	} else {
		uris = strings.Fields(string(msg.Body))
	}

	out, result := engine.Run(publishjob.Options{
		URIs:             uris,
		Action:           p.action,
		ForceHidden:      strtobool(msg.Args["hidden"]),
		ForceVisible:     strtobool(msg.Args["visible"]),
		PublicURLPattern: engine.Config.PublicURLPattern,
	})
	for ev := range out {
		progress <- marshalProgress(ev)
	}
	if result.Err != nil {
		return "error", nil, result.Err
	}
	return string(result.State), marshalProgress(result), nil
}

func marshalProgress(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return b
}

func loadOrCreateJob(deps Dependencies, msg *CommandMessage, extra map[string]interface{}) (*jobstore.Job, error) {
	jobID := msg.JobID()
	if strtobool(msg.Args["resume"]) {
		return deps.Store.GetJob(jobID)
	}
	return deps.Store.CreateJob(&jobstore.Config{JobID: jobID, Extra: extra})
}
