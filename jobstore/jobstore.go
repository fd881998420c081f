// Package jobstore manages the on-disk directory layout for import, update,
// and publish jobs: one directory per job under a jobs root, holding the
// job's YAML config, its metadata spreadsheet, a completed-items log, and a
// timestamped subdirectory per run holding that run's dropped-item logs.
package jobstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/itemlog"
)

// Config is the persisted, job-kind-agnostic set of fields every job.yml
// carries; job-kind-specific fields (import/update/publish) are merged in
// by the caller via Extra.
type Config struct {
	JobID string                 `yaml:"job_id"`
	Extra map[string]interface{} `yaml:",inline"`
}

// LoadConfig reads and parses a job's config.yml, distinguishing a missing
// file from an empty one from a malformed one.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &perr.JobConfigError{Kind: perr.ConfigMissing, Cause: err}
		}
		return nil, &perr.JobConfigError{Kind: perr.ConfigMalformed, Cause: err}
	}
	if len(data) == 0 {
		return nil, &perr.JobConfigError{Kind: perr.ConfigEmpty}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &perr.JobConfigError{Kind: perr.ConfigMalformed, Cause: err}
	}
	return &cfg, nil
}

// Save writes cfg to filename as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

var runDirPattern = regexp.MustCompile(`^\d{14}$`)

// completedLogFieldnames is the fixed schema for every job's completed.log.csv.
var completedLogFieldnames = []string{"id", "timestamp", "title", "uri", "status"}

// Job is a single job's on-disk state: its id, directory, config, and
// completed-items log. Catalog is carried over from the Store that
// produced this Job so that NewRun can record run starts there; it is
// nil whenever the Store has no catalog configured.
type Job struct {
	ID     string
	Dir    string
	Config *Config

	CompletedLog *itemlog.Log
	Catalog      *Catalog
}

// ConfigFilename is the path to this job's config.yml.
func (j *Job) ConfigFilename() string { return filepath.Join(j.Dir, "config.yml") }

// SourceFilename is the path to this job's metadata spreadsheet, if any.
func (j *Job) SourceFilename() string { return filepath.Join(j.Dir, "source.csv") }

// Exists reports whether the job's directory is present on disk.
func (j *Job) Exists() bool {
	info, err := os.Stat(j.Dir)
	return err == nil && info.IsDir()
}

// LoadConfig reads config.yml into j.Config.
func (j *Job) LoadConfig() error {
	cfg, err := LoadConfig(j.ConfigFilename())
	if err != nil {
		return err
	}
	j.Config = cfg
	return nil
}

// UpdateConfig merges non-nil fields from updates into the job's in-memory
// config (without persisting); callers should follow with Config.Save when
// they want the change durable.
func (j *Job) UpdateConfig(updates map[string]interface{}) {
	if j.Config.Extra == nil {
		j.Config.Extra = make(map[string]interface{})
	}
	for k, v := range updates {
		if v != nil {
			j.Config.Extra[k] = v
		}
	}
}

// Runs lists this job's run timestamps, most recent first.
func (j *Job) Runs() ([]string, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		return nil, err
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && runDirPattern.MatchString(e.Name()) {
			runs = append(runs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// Run is a single timestamped run directory holding that run's
// dropped-item logs.
type Run struct {
	Timestamp string
	Dir       string

	InvalidItems *itemlog.Log
	FailedItems  *itemlog.Log
}

var droppedLogFieldnames = []string{"id", "timestamp", "title", "uri", "reason"}

func newRun(jobDir, timestamp string) (*Run, error) {
	dir := filepath.Join(jobDir, timestamp)
	invalid, err := itemlog.Open(filepath.Join(dir, "dropped-invalid.log.csv"), droppedLogFieldnames, "id")
	if err != nil {
		return nil, err
	}
	failed, err := itemlog.Open(filepath.Join(dir, "dropped-failed.log.csv"), droppedLogFieldnames, "id")
	if err != nil {
		return nil, err
	}
	return &Run{Timestamp: timestamp, Dir: dir, InvalidItems: invalid, FailedItems: failed}, nil
}

// NewRun creates a fresh, timestamped run directory under the job and
// returns a Run bound to it. If the job's Store configured a Catalog, the
// job's catalog entry is marked "running".
func (j *Job) NewRun() (*Run, error) {
	timestamp := time.Now().Format("20060102150405")
	run, err := newRun(j.Dir, timestamp)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(run.Dir, 0o755); err != nil {
		return nil, err
	}
	if err := j.Catalog.MarkRun(j.ID, "running"); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun returns the most recent run, or nil if the job has never run.
func (j *Job) LatestRun() (*Run, error) {
	runs, err := j.Runs()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return newRun(j.Dir, runs[0])
}

// Store is the jobs root directory: one subdirectory per job, named by the
// URL-encoded job id. Locker and Catalog are optional: a nil Locker skips
// distributed locking (fine for a single dispatcher instance), and a nil
// Catalog skips mirroring job metadata into Postgres.
type Store struct {
	Dir     string
	Locker  *Locker
	Catalog *Catalog
}

// NewStore returns a Store rooted at dir, with no distributed lock or
// catalog configured.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) jobDir(jobID string) string {
	return filepath.Join(s.Dir, url.QueryEscape(jobID))
}

func (s *Store) newJob(jobID string) *Job {
	dir := s.jobDir(jobID)
	completed, _ := itemlog.Open(filepath.Join(dir, "completed.log.csv"), completedLogFieldnames, "id")
	return &Job{ID: jobID, Dir: dir, CompletedLog: completed, Catalog: s.Catalog}
}

// jobKind guesses the job kind from its config, for the catalog entry.
// Falls back to "unknown" for job kinds the catalog doesn't need to
// distinguish further.
func jobKind(cfg *Config) string {
	if cfg.Extra == nil {
		return "unknown"
	}
	for _, key := range []string{"sparql_update", "action", "model"} {
		if _, ok := cfg.Extra[key]; ok {
			switch key {
			case "sparql_update":
				return "update"
			case "action":
				return "publish"
			case "model":
				return "import"
			}
		}
	}
	return "unknown"
}

// CreateJob creates a new job directory and persists cfg as its config.yml.
// Returns an error if the directory already exists. If the store has a
// Locker configured, CreateJob holds the job-id lock for the duration of
// directory creation, so two dispatcher instances racing to create the
// same job id cannot both succeed; if a Catalog is configured, the new
// job is also recorded there.
func (s *Store) CreateJob(cfg *Config) (*Job, error) {
	ctx := context.Background()
	lease, ok, err := s.Locker.Acquire(ctx, cfg.JobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job id %q is locked by another process", cfg.JobID)
	}
	defer lease.Release(ctx)

	dir := s.jobDir(cfg.JobID)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil, fmt.Errorf("job directory %s for job id %q already exists", dir, cfg.JobID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	job := s.newJob(cfg.JobID)
	if err := cfg.Save(job.ConfigFilename()); err != nil {
		return nil, err
	}
	job.Config = cfg

	if err := s.Catalog.Upsert(&CatalogEntry{JobID: cfg.JobID, Kind: jobKind(cfg), Status: "pending"}); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob loads an existing job by id, including its config. Returns
// perr.JobNotFound if the job directory does not exist.
func (s *Store) GetJob(jobID string) (*Job, error) {
	job := s.newJob(jobID)
	if !job.Exists() {
		return nil, &perr.JobNotFound{JobID: jobID}
	}
	if err := job.LoadConfig(); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobIDs returns the ids of every job directory under the store, sorted.
func (s *Store) ListJobIDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := url.QueryUnescape(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
