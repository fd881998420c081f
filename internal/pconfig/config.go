// Package pconfig loads process-wide settings from environment variables:
// the repository endpoint, the STOMP broker URL, and the jobs root
// directory. Per-job configuration (model, container path, binaries
// location) lives in jobstore's config.yml instead, since it travels with
// the job rather than the process.
package pconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig reads PREFIX_KEY-shaped environment variables.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig returns an EnvConfig that prefixes every lookup with prefix
// followed by an underscore.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: strings.ToUpper(prefix)}
}

func (c *EnvConfig) buildKey(key string) string {
	if c.prefix == "" {
		return strings.ToUpper(key)
	}
	return c.prefix + "_" + strings.ToUpper(key)
}

// GetString returns the value for key, or def if unset.
func (c *EnvConfig) GetString(key, def string) string {
	if v, ok := os.LookupEnv(c.buildKey(key)); ok {
		return v
	}
	return def
}

// MustGetString returns the value for key, panicking with a descriptive
// message if it is unset.
func (c *EnvConfig) MustGetString(key string) string {
	v, ok := os.LookupEnv(c.buildKey(key))
	if !ok {
		panic(fmt.Sprintf("required environment variable %s is not set", c.buildKey(key)))
	}
	return v
}

// GetInt returns the integer value for key, or def if unset or unparsable.
func (c *EnvConfig) GetInt(key string, def int) int {
	v, ok := os.LookupEnv(c.buildKey(key))
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the boolean value for key, or def if unset or unparsable.
func (c *EnvConfig) GetBool(key string, def bool) bool {
	v, ok := os.LookupEnv(c.buildKey(key))
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetDuration returns the duration value for key, or def if unset or unparsable.
func (c *EnvConfig) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(c.buildKey(key))
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// RepositoryConfig describes how to reach the LDP repository.
type RepositoryConfig struct {
	EndpointURL    string        // e.g. http://localhost:8080/fcrepo/rest
	ExternalURL    string        // optional public-facing URL, if different
	DefaultPath    string        // default container path, "/" if unset
	Username       string
	Password       string
	KeepAlive      time.Duration // transaction keep-alive interval
	RequestTimeout time.Duration
}

// LoadRepositoryConfig reads PLASTRON_REPO_* variables.
func LoadRepositoryConfig() RepositoryConfig {
	c := NewEnvConfig("PLASTRON_REPO")
	return RepositoryConfig{
		EndpointURL:    c.MustGetString("ENDPOINT"),
		ExternalURL:    c.GetString("EXTERNAL_URL", ""),
		DefaultPath:    c.GetString("DEFAULT_PATH", "/"),
		Username:       c.GetString("USERNAME", ""),
		Password:       c.GetString("PASSWORD", ""),
		KeepAlive:      c.GetDuration("KEEP_ALIVE", 90*time.Second),
		RequestTimeout: c.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

// BrokerConfig describes how to reach the STOMP broker.
type BrokerConfig struct {
	URL               string
	AsyncQueue        string
	SyncQueue         string
	StatusQueue       string
	ProgressTopic     string
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

// LoadBrokerConfig reads PLASTRON_BROKER_* variables.
func LoadBrokerConfig() BrokerConfig {
	c := NewEnvConfig("PLASTRON_BROKER")
	return BrokerConfig{
		URL:               c.MustGetString("URL"),
		AsyncQueue:        c.GetString("ASYNC_QUEUE", "/queue/plastron.jobs"),
		SyncQueue:         c.GetString("SYNC_QUEUE", "/queue/plastron.jobs.synchronous"),
		StatusQueue:       c.GetString("STATUS_QUEUE", "/queue/plastron.jobs.status"),
		ProgressTopic:     c.GetString("PROGRESS_TOPIC", "/topic/plastron.jobs.progress"),
		ReconnectMinDelay: c.GetDuration("RECONNECT_MIN_DELAY", time.Second),
		ReconnectMaxDelay: c.GetDuration("RECONNECT_MAX_DELAY", 30*time.Second),
	}
}

// JobStoreConfig describes where job directories live and how job-id
// locking and the optional catalog mirror are configured.
type JobStoreConfig struct {
	JobsRoot    string
	RedisAddr   string // optional; empty disables distributed locking
	CatalogDSN  string // optional; empty disables the Postgres catalog mirror
}

// LoadJobStoreConfig reads PLASTRON_JOBS_* variables.
func LoadJobStoreConfig() JobStoreConfig {
	c := NewEnvConfig("PLASTRON_JOBS")
	return JobStoreConfig{
		JobsRoot:   c.GetString("ROOT", "./jobs"),
		RedisAddr:  c.GetString("REDIS_ADDR", ""),
		CatalogDSN: c.GetString("CATALOG_DSN", ""),
	}
}
