// Command plastron drives bulk, resumable ingest and maintenance of
// RDF-described resources against an LDP repository: importing new
// resources from a metadata spreadsheet, applying SPARQL updates across a
// set of resources, publishing or unpublishing resources, and running the
// message-driven dispatcher that does all three in response to STOMP jobs.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redis/go-redis/v9"

	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/internal/plog"
	"github.com/umd-lib/plastron-go/internal/pconfig"
	"github.com/umd-lib/plastron-go/jobstore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "plastron",
	Short: "bulk, resumable ingest and maintenance of RDF-described repository resources",
	Long: `plastron imports resources from a metadata spreadsheet, applies SPARQL
updates across a set of resources, and toggles publication state, all
against an LDP repository, with every job resumable from where it left off.

Configuration is resolved, highest precedence first, from command-line
flags, environment variables prefixed PLASTRON_, and a YAML config file
(default $HOME/.plastron.yaml).`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.plastron.yaml)")
	rootCmd.PersistentFlags().String("repo-url", "", "repository internal base URL")
	rootCmd.PersistentFlags().String("repo-external-url", "", "repository public-facing base URL, if different from repo-url")
	rootCmd.PersistentFlags().String("repo-path", "/", "default container path for newly created resources")
	rootCmd.PersistentFlags().String("jobs-dir", "jobs", "directory holding per-job state")
	rootCmd.PersistentFlags().Duration("http-timeout", 60*time.Second, "HTTP client timeout")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json (default auto-detects from the terminal)")

	for _, name := range []string{
		"repo-url", "repo-external-url", "repo-path", "jobs-dir",
		"http-timeout", "log-level", "log-format",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".plastron")
	}

	viper.SetEnvPrefix("plastron")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func newLogger(component string) *plog.ContextLogger {
	cfg := plog.DefaultConfig()
	if v := viper.GetString("log-level"); v != "" {
		cfg.Level = plog.Level(v)
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Format = v
	}
	return plog.New(plog.NewLogger(cfg), map[string]interface{}{"component": component})
}

// repositoryConfigFromEnv loads RepositoryConfig from PLASTRON_REPO_* and
// reports whether PLASTRON_REPO_ENDPOINT was actually set, since
// LoadRepositoryConfig requires it and would otherwise panic.
func repositoryConfigFromEnv() (cfg pconfig.RepositoryConfig, ok bool) {
	if os.Getenv("PLASTRON_REPO_ENDPOINT") == "" {
		return pconfig.RepositoryConfig{}, false
	}
	return pconfig.LoadRepositoryConfig(), true
}

// newEndpoint resolves the repository endpoint from, in order, the
// --repo-url flag and PLASTRON_REPO_* environment variables.
func newEndpoint() client.Endpoint {
	repoURL := viper.GetString("repo-url")
	externalURL := viper.GetString("repo-external-url")
	repoPath := viper.GetString("repo-path")
	if repoURL == "" {
		if envCfg, ok := repositoryConfigFromEnv(); ok {
			repoURL = envCfg.EndpointURL
			if externalURL == "" {
				externalURL = envCfg.ExternalURL
			}
			if repoPath == "" || repoPath == "/" {
				repoPath = envCfg.DefaultPath
			}
		}
	}
	return client.NewEndpoint(repoURL, externalURL, repoPath)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: viper.GetDuration("http-timeout")}
}

// newStore builds a Store rooted at the configured jobs directory. The
// distributed lock and catalog mirror are optional and configured purely
// through PLASTRON_JOBS_REDIS_ADDR / PLASTRON_JOBS_CATALOG_DSN, since
// they're operational concerns of a shared multi-dispatcher deployment
// rather than something an operator tunes per invocation.
func newStore() *jobstore.Store {
	store := jobstore.NewStore(viper.GetString("jobs-dir"))

	jobsCfg := pconfig.LoadJobStoreConfig()
	if jobsCfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: jobsCfg.RedisAddr})
		store.Locker = jobstore.NewLocker(client, 10*time.Minute)
	}
	if jobsCfg.CatalogDSN != "" {
		catalog, err := jobstore.OpenCatalog(jobsCfg.CatalogDSN)
		if err != nil {
			fmt.Fprintln(os.Stderr, "catalog disabled:", err)
		} else {
			store.Catalog = catalog
		}
	}
	return store
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
