package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/umd-lib/plastron-go/dispatcher"
	"github.com/umd-lib/plastron-go/internal/pconfig"
	"github.com/umd-lib/plastron-go/queue"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "run the STOMP message dispatcher: import/update/publish jobs submitted over a broker",
	Args:  cobra.NoArgs,
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().String("broker-addr", "localhost:61613", "STOMP broker address")
	dispatchCmd.Flags().String("jobs-destination", "/queue/plastron.jobs", "destination for asynchronous job submissions")
	dispatchCmd.Flags().String("synchronous-jobs-destination", "/queue/plastron.jobs.synchronous", "destination for synchronous job submissions")
	dispatchCmd.Flags().String("status-destination", "/topic/plastron.jobs.status", "destination for terminal job responses")
	dispatchCmd.Flags().String("progress-destination", "/topic/plastron.jobs.progress", "destination for in-progress job events")
	dispatchCmd.Flags().Int("workers", 4, "number of jobs to run concurrently")
	dispatchCmd.Flags().String("audit-amqp-url", "", "optional AMQP URL to fan terminal job events out to")
	dispatchCmd.Flags().String("audit-queue", "plastron.audit", "AMQP queue name for the audit fanout")

	for _, name := range []string{
		"broker-addr", "jobs-destination", "synchronous-jobs-destination",
		"status-destination", "progress-destination", "workers",
		"audit-amqp-url", "audit-queue",
	} {
		viper.BindPFlag(name, dispatchCmd.Flags().Lookup(name))
	}
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	logger := newLogger("dispatch")

	// When a PLASTRON_BROKER_URL environment variable is set and
	// --broker-addr is not given, the environment's broker config supplies
	// the address and every destination flag not given explicitly.
	brokerAddr := viper.GetString("broker-addr")
	jobsDest := viper.GetString("jobs-destination")
	syncDest := viper.GetString("synchronous-jobs-destination")
	statusDest := viper.GetString("status-destination")
	progressDest := viper.GetString("progress-destination")
	if envURL := os.Getenv("PLASTRON_BROKER_URL"); envURL != "" && !cmd.Flags().Changed("broker-addr") {
		brokerCfg := pconfig.LoadBrokerConfig()
		brokerAddr = brokerCfg.URL
		if !cmd.Flags().Changed("jobs-destination") {
			jobsDest = brokerCfg.AsyncQueue
		}
		if !cmd.Flags().Changed("synchronous-jobs-destination") {
			syncDest = brokerCfg.SyncQueue
		}
		if !cmd.Flags().Changed("status-destination") {
			statusDest = brokerCfg.StatusQueue
		}
		if !cmd.Flags().Changed("progress-destination") {
			progressDest = brokerCfg.ProgressTopic
		}
	}

	destinations := map[string]string{
		"JOBS":             jobsDest,
		"SYNCHRONOUS_JOBS": syncDest,
		"JOB_STATUS":       statusDest,
		"JOB_PROGRESS":     progressDest,
	}
	broker := dispatcher.NewBroker(dispatcher.RealBrokerDialer{}, brokerAddr, destinations)

	deps := dispatcher.Dependencies{
		Store:      newStore(),
		Endpoint:   newEndpoint(),
		HTTPClient: newHTTPClient(),
		// HandleClient is left nil: no handle-minting service is wired to this
		// deployment. Publish jobs still run; they just never mint a handle.
		HandleClient: nil,
	}

	pool := dispatcher.NewWorkerPool(viper.GetInt("workers"))
	listener, err := dispatcher.NewListener(broker, viper.GetString("jobs-dir"), pool, deps)
	if err != nil {
		return err
	}

	if url := viper.GetString("audit-amqp-url"); url != "" {
		audit, err := dispatcher.NewAuditPublisher(&queue.RealAMQPDialer{}, url, viper.GetString("audit-queue"))
		if err != nil {
			logger.Warnf("audit fanout disabled: %v", err)
		} else {
			listener.Audit = audit
			defer audit.Close()
		}
	}

	if err := listener.Start(); err != nil {
		return err
	}
	logger.Infof("dispatcher listening on %s", viper.GetString("broker-addr"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down dispatcher")
	listener.Stop()
	return nil
}
