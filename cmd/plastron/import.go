package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/contentmodel"
	"github.com/umd-lib/plastron-go/importjob"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/publishjob"
)

var importCmd = &cobra.Command{
	Use:   "import <job-id> [spreadsheet.csv]",
	Short: "create or update resources from a metadata spreadsheet",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().String("model", "", "content model name to validate rows against")
	importCmd.Flags().String("access", "", "access-status URI to stamp on new items")
	importCmd.Flags().String("member-of", "", "URI of the collection new items belong to")
	importCmd.Flags().String("container", "", "repository container new items are created under")
	importCmd.Flags().String("binaries-location", "", "base location to resolve FILES/ITEM_FILES references from")
	importCmd.Flags().String("ssh-private-key", "", "private key path for sftp:// binary sources")
	importCmd.Flags().String("public-url-pattern", "", `pattern used to derive a published row's public URL, containing the literal "{uuid}"`)
	importCmd.Flags().Int("limit", 0, "stop after this many rows (0 for no limit)")
	importCmd.Flags().Int("percent", 0, "process only this percentage of rows, evenly sampled (0 for all)")
	importCmd.Flags().Bool("validate-only", false, "validate rows without writing to the repository")
	importCmd.Flags().Bool("resume", false, "resume an existing job instead of creating a new one")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	viper.BindPFlags(cmd.Flags())
	logger := newLogger("import")
	store := newStore()

	resume, _ := cmd.Flags().GetBool("resume")
	var job *jobstore.Job
	var err error
	if resume {
		job, err = store.GetJob(jobID)
	} else {
		cfg := importjob.Config{
			Model:             viper.GetString("model"),
			Access:            viper.GetString("access"),
			MemberOf:          viper.GetString("member-of"),
			Container:         viper.GetString("container"),
			BinariesLocation:  viper.GetString("binaries-location"),
			SSHPrivateKeyPath: viper.GetString("ssh-private-key"),
			PublicURLPattern:  viper.GetString("public-url-pattern"),
		}
		job, err = store.CreateJob(&jobstore.Config{JobID: jobID, Extra: cfg.ToExtra()})
	}
	if err != nil {
		return err
	}

	if !resume {
		if len(args) < 2 {
			return fmt.Errorf("a spreadsheet path is required unless --resume is set")
		}
		src, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := os.Create(job.SourceFilename())
		if err != nil {
			return err
		}
		defer dst.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return err
		}
	}

	cfg := importjob.FromExtra(job.Config.Extra)
	model, err := contentmodel.Get(cfg.Model)
	if err != nil {
		return err
	}

	tc := client.NewTransactionClient(client.NewClient(newEndpoint(), newHTTPClient()))
	var handleClient publishjob.HandleClient // nil: no handle service configured for this command
	engine := importjob.NewEngine(tc, job, model, handleClient)

	out, result := engine.Run(importjob.Options{
		Limit:        viper.GetInt("limit"),
		Percentage:   viper.GetInt("percent"),
		ValidateOnly: viper.GetBool("validate-only"),
	})
	for p := range out {
		logger.Infof("%s (%s/%s rows, %s errors)",
			p.Message,
			humanize.Comma(int64(p.Counts.Rows)),
			humanize.Comma(int64(p.Counts.Total)),
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
