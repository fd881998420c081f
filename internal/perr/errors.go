// Package perr defines the error kinds named in the error-handling design:
// HTTP failures, transaction failure, metadata parsing problems, validation
// failures, missing binaries, and job-store configuration problems. Each
// kind wraps an underlying cause and is distinguishable with errors.As.
package perr

import (
	"fmt"
	"net/http"
)

// ClientError is raised when the repository returns a 4xx or 5xx response.
type ClientError struct {
	StatusCode int
	Reason     string
	URL        string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Reason, e.URL)
}

// NewClientError builds a ClientError from a status code, using the standard
// reason phrase when the response carried none.
func NewClientError(url string, statusCode int, reason string) *ClientError {
	if reason == "" {
		reason = http.StatusText(statusCode)
	}
	return &ClientError{StatusCode: statusCode, Reason: reason, URL: url}
}

// TransactionFailed is returned when an explicit commit or rollback is
// rejected by the repository. A keep-alive failure is recorded on the
// transaction's keep-alive worker and does not produce this error.
type TransactionFailed struct {
	TxURI string
	Cause error
}

func (e *TransactionFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transaction %s failed: %v", e.TxURI, e.Cause)
	}
	return fmt.Sprintf("transaction %s failed", e.TxURI)
}

func (e *TransactionFailed) Unwrap() error { return e.Cause }

// MetadataError is raised while parsing a spreadsheet row or its FILES/INDEX
// columns; rows that raise it become InvalidRow and are never sent to the
// repository.
type MetadataError struct {
	Row    int
	Reason string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ValidationFailure wraps the content model's structured per-property
// validation report as a single error for callers that want one.
type ValidationFailure struct {
	Failures map[string]string // property name -> failure message
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed for %d propert(y/ies)", len(e.Failures))
}

// BinarySourceNotFound is raised when a binary source's location cannot be
// resolved to a readable file, as distinct from a transport-level failure.
type BinarySourceNotFound struct {
	Location string
}

func (e *BinarySourceNotFound) Error() string {
	return fmt.Sprintf("binary source not found: %s", e.Location)
}

// JobConfigErrorKind distinguishes the three ways a job config can be unusable.
type JobConfigErrorKind int

const (
	ConfigMissing JobConfigErrorKind = iota
	ConfigEmpty
	ConfigMalformed
)

// JobConfigError is raised when a job's config.yml is missing, empty, or
// cannot be parsed. The three cases are distinguishable via Kind.
type JobConfigError struct {
	JobID string
	Kind  JobConfigErrorKind
	Cause error
}

func (e *JobConfigError) Error() string {
	switch e.Kind {
	case ConfigMissing:
		return fmt.Sprintf("job %q: config file missing", e.JobID)
	case ConfigEmpty:
		return fmt.Sprintf("job %q: config file empty", e.JobID)
	default:
		return fmt.Sprintf("job %q: config file malformed: %v", e.JobID, e.Cause)
	}
}

func (e *JobConfigError) Unwrap() error { return e.Cause }

// JobNotFound is raised when resuming or loading a job whose directory does
// not exist.
type JobNotFound struct {
	JobID string
}

func (e *JobNotFound) Error() string {
	return fmt.Sprintf("job %q not found", e.JobID)
}
