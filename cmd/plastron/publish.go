package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/publishjob"
)

var publishCmd = &cobra.Command{
	Use:   "publish <job-id> <uri>...",
	Short: "mark resources published (no handle service is configured, so no handles are minted)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPublication(publishjob.ActionPublish),
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish <job-id> <uri>...",
	Short: "mark resources unpublished",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPublication(publishjob.ActionUnpublish),
}

func init() {
	for _, c := range []*cobra.Command{publishCmd, unpublishCmd} {
		c.Flags().String("public-url-pattern", "", `pattern used to derive a resource's public URL, containing the literal "{uuid}"`)
		c.Flags().Bool("hidden", false, "force the resource hidden regardless of its current state")
		c.Flags().Bool("visible", false, "force the resource visible regardless of its current state")
		rootCmd.AddCommand(c)
	}
}

func runPublication(action publishjob.Action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		jobID, uris := args[0], args[1:]
		viper.BindPFlags(cmd.Flags())
		logger := newLogger(string(action))
		store := newStore()

		cfg := publishjob.Config{PublicURLPattern: viper.GetString("public-url-pattern")}
		job, err := store.GetJob(jobID)
		if err != nil {
			job, err = store.CreateJob(&jobstore.Config{JobID: jobID, Extra: cfg.ToExtra()})
		}
		if err != nil {
			return err
		}

		var handleClient publishjob.HandleClient // nil: no handle service configured for this command
		c := client.NewClient(newEndpoint(), newHTTPClient())
		engine := publishjob.NewEngine(c, job, handleClient)

		hidden := viper.GetBool("hidden")
		visible := viper.GetBool("visible")
		if hidden && visible {
			return fmt.Errorf("--hidden and --visible are mutually exclusive")
		}

		out, result := engine.Run(publishjob.Options{
			URIs:             uris,
			Action:           action,
			ForceHidden:      hidden,
			ForceVisible:     visible,
			PublicURLPattern: engine.Config.PublicURLPattern,
		})
		for p := range out {
			logger.Infof("%s: %s (%s)", p.URI, p.Status, p.Message)
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
}
