// Package plog provides structured logging shared by every job engine and
// the message dispatcher. It mirrors the field-builder pattern used
// elsewhere in the organization's Go services, adapted to this domain's
// vocabulary: job id, run timestamp, transaction URI, row number.
package plog

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Level is the minimum severity a Logger will emit.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config controls how NewLogger builds the underlying logrus.Logger.
type Config struct {
	Level     Level
	Format    string // "json" or "text"; "" auto-detects from the output terminal
	AddCaller bool
}

// DefaultConfig returns a Config suitable for local development: info level,
// format auto-detected from stderr (see NewLogger), no caller reporting.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "", AddCaller: false}
}

// NewLogger builds a *logrus.Logger per cfg. When cfg.Format is empty, JSON
// is used unless stderr is an interactive terminal, in which case text is
// used instead so local runs stay readable.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	format := cfg.Format
	if format == "" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(os.Stderr)
	return logger
}

// Default is the process-wide logger used when callers do not build their own.
var Default = NewLogger(DefaultConfig())

// ContextLogger carries a set of structured fields that accumulate as work
// descends through an engine: job id, run timestamp, transaction URI, row
// number, and so on.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// New creates a ContextLogger rooted at the given base fields. A nil logger
// falls back to Default.
func New(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Default
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) clone(extra logrus.Fields) *ContextLogger {
	merged := make(logrus.Fields, len(cl.fields)+len(extra))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: merged}
}

// WithField returns a derived logger carrying one additional field.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.clone(logrus.Fields{key: value})
}

// WithFields returns a derived logger carrying several additional fields.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	lf := make(logrus.Fields, len(fields))
	for k, v := range fields {
		lf[k] = v
	}
	return cl.clone(lf)
}

// WithError returns a derived logger with the error's message attached.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	if err == nil {
		return cl
	}
	return cl.clone(logrus.Fields{"error": err.Error()})
}

// WithContext extracts job_id/run_id from ctx, if present, and attaches them.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	extra := logrus.Fields{}
	if jobID, ok := ctx.Value(jobIDKey{}).(string); ok {
		extra["job_id"] = jobID
	}
	if runID, ok := ctx.Value(runIDKey{}).(string); ok {
		extra["run_id"] = runID
	}
	if len(extra) == 0 {
		return cl
	}
	return cl.clone(extra)
}

type jobIDKey struct{}
type runIDKey struct{}

// WithJobID attaches a job id to ctx for later retrieval by WithContext.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// WithRunID attaches a run id to ctx for later retrieval by WithContext.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Info(msg string) { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Warn(msg string) { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// LogOperation logs the start and end of fn, including its duration, and
// returns whatever error fn returned.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Debug("operation started")
	err := fn()
	entry := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Debug("operation completed")
	return nil
}

// LogPanic recovers from a panic in progress and logs it with a stack trace.
// Intended to be deferred at the top of a worker goroutine so a single job's
// failure cannot take down the dispatcher process.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
