package main

import (
	"encoding/json"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/contentmodel"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/updatejob"
)

var updateCmd = &cobra.Command{
	Use:   "update <job-id> <sparql-update-file>",
	Short: "apply a SPARQL Update statement across a set of resources",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().StringSlice("uris", nil, "seed resource URIs to update")
	updateCmd.Flags().String("model", "", "content model to validate each resource against before updating")
	updateCmd.Flags().Bool("no-transactions", false, "apply each seed's update outside a repository transaction")
	updateCmd.Flags().Bool("dry-run", false, "report what would change without writing to the repository")
	updateCmd.Flags().Bool("resume", false, "resume an existing job instead of creating a new one")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	jobID, updateFile := args[0], args[1]
	viper.BindPFlags(cmd.Flags())
	logger := newLogger("update")
	store := newStore()

	sparql, err := os.ReadFile(updateFile)
	if err != nil {
		return err
	}

	resume, _ := cmd.Flags().GetBool("resume")
	var job *jobstore.Job
	if resume {
		job, err = store.GetJob(jobID)
	} else {
		uris, _ := cmd.Flags().GetStringSlice("uris")
		cfg := updatejob.Config{
			SparqlUpdate:    string(sparql),
			Model:           viper.GetString("model"),
			URIs:            uris,
			UseTransactions: !viper.GetBool("no-transactions"),
		}
		job, err = store.CreateJob(&jobstore.Config{JobID: jobID, Extra: cfg.ToExtra()})
	}
	if err != nil {
		return err
	}

	cfg := updatejob.FromExtra(job.Config.Extra)
	var model contentmodel.Model
	if cfg.Model != "" {
		model, err = contentmodel.Get(cfg.Model)
		if err != nil {
			return err
		}
	}

	tc := client.NewTransactionClient(client.NewClient(newEndpoint(), newHTTPClient()))
	engine := updatejob.NewEngine(tc, job)
	opts := engine.DefaultOptions(model)
	opts.DryRun = viper.GetBool("dry-run")

	out, result := engine.Run(opts)
	for p := range out {
		logger.Infof("%s (%s updated, %s skipped, %s errors)",
			p.Message,
			humanize.Comma(int64(p.Counts.Updated)),
			humanize.Comma(int64(p.Counts.Skipped)),
			humanize.Comma(int64(p.Counts.Errors)))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Err != nil {
		return result.Err
	}
	return nil
}
