// Package itemlog implements the append-only, keyed CSV logs used to track
// job progress: completed.log.csv, dropped-invalid.log.csv, and
// dropped-failed.log.csv. Each row is keyed by one of its own columns (the
// item identifier), so resuming a job can skip rows already recorded
// without re-reading the whole file into memory up front.
package itemlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/umd-lib/plastron-go/internal/plog"
)

// Row is one record: named fields matching a Log's Fieldnames. Append
// writes them in Fieldnames order.
type Row map[string]string

// Log is an append-only CSV file indexed by one key column. It is safe for
// concurrent use.
type Log struct {
	Filename   string
	Fieldnames []string
	Keyfield   string

	mu     sync.Mutex
	rows   []Row
	keys   map[string]bool
	loaded bool
	logger *plog.ContextLogger
}

// Open returns a Log bound to filename. It does not read or create the file
// until the first operation that needs it. Returns an error if keyfield is
// not one of fieldnames.
func Open(filename string, fieldnames []string, keyfield string) (*Log, error) {
	found := false
	for _, f := range fieldnames {
		if f == keyfield {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("keyfield %q is not among fieldnames %v", keyfield, fieldnames)
	}
	return &Log{
		Filename:   filename,
		Fieldnames: fieldnames,
		Keyfield:   keyfield,
		keys:       make(map[string]bool),
		logger:     plog.New(nil, map[string]interface{}{"component": "itemlog", "file": filename}),
	}, nil
}

// Exists reports whether the log file has been created on disk.
func (l *Log) Exists() bool {
	_, err := os.Stat(l.Filename)
	return err == nil
}

// Create writes an empty log file with just the header row, if it does not
// already exist.
func (l *Log) Create() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Exists() {
		return nil
	}
	f, err := os.Create(l.Filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(l.Fieldnames); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func (l *Log) load() error {
	if l.loaded {
		return nil
	}
	if !l.Exists() {
		l.loaded = true
		return nil
	}
	f, err := os.Open(l.Filename)
	if err != nil {
		return err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		l.loaded = true
		return nil // empty file: nothing to index
	}
	if !fieldnamesMatch(header, l.Fieldnames) {
		l.logger.Warnf("log header %v does not match expected fieldnames %v", header, l.Fieldnames)
	}
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		l.rows = append(l.rows, row)
		if key, ok := row[l.Keyfield]; ok {
			l.keys[key] = true
		}
	}
	l.loaded = true
	return nil
}

func fieldnamesMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Len returns the number of rows currently recorded, loading the file on
// first use.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()
	return len(l.rows)
}

// Contains reports whether key has already been recorded under Keyfield.
func (l *Log) Contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()
	return l.keys[key]
}

// At returns the row at position n (0-indexed), or an error if n is out of
// range.
func (l *Log) At(n int) (Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()
	if n < 0 || n >= len(l.rows) {
		return nil, fmt.Errorf("index %d out of range (len %d)", n, len(l.rows))
	}
	return l.rows[n], nil
}

// Rows returns a copy of all rows recorded so far, in append order.
func (l *Log) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Append writes row to the file and fsyncs it before returning, so a crash
// immediately after Append cannot lose the record. It creates the file
// (with header) first if necessary.
func (l *Log) Append(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()

	if !l.Exists() {
		if err := l.createLocked(); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.Filename, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	record := make([]string, len(l.Fieldnames))
	for i, name := range l.Fieldnames {
		record[i] = row[name]
	}
	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	l.rows = append(l.rows, row)
	if key, ok := row[l.Keyfield]; ok {
		l.keys[key] = true
	}
	return nil
}

func (l *Log) createLocked() error {
	f, err := os.Create(l.Filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(l.Fieldnames); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// NullLog is a Log-shaped sink that discards everything written to it,
// used when a job is configured not to keep a particular log (e.g. dry
// runs that should not mark rows completed).
type NullLog struct{}

func (NullLog) Len() int              { return 0 }
func (NullLog) Contains(string) bool  { return false }
func (NullLog) Append(Row) error      { return nil }
func (NullLog) Rows() []Row           { return nil }
func (NullLog) Exists() bool          { return false }

// AppendableLog is the interface importjob/updatejob engines depend on, so
// a NullLog can stand in for a real Log in dry-run mode.
type AppendableLog interface {
	Len() int
	Contains(key string) bool
	Append(row Row) error
	Rows() []Row
	Exists() bool
}

var (
	_ AppendableLog = (*Log)(nil)
	_ AppendableLog = NullLog{}
)
