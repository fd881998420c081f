package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "inspect job state on disk",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every known job id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newStore().ListJobIDs()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "show a job's configuration and most recent run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newStore().GetJob(args[0])
		if err != nil {
			return err
		}
		runs, err := job.Runs()
		if err != nil {
			return err
		}
		status := struct {
			JobID  string                 `json:"job_id"`
			Config map[string]interface{} `json:"config"`
			Runs   []string               `json:"runs"`
		}{JobID: job.ID, Config: job.Config.Extra, Runs: runs}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	jobCmd.AddCommand(jobListCmd, jobStatusCmd)
	rootCmd.AddCommand(jobCmd)
}
