// Package logging provides structured logging for the pipeline binaries.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger wraps a zerolog.Logger with component context attached.
type ComponentLogger struct {
	logger zerolog.Logger
}

// NewComponentLogger creates a component-specific logger with consistent context.
// The level is taken from LOG_LEVEL; outside production the output is the
// human-readable console writer.
func NewComponentLogger(componentName, version string) *ComponentLogger {
	zerolog.TimeFieldFormat = time.RFC3339

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("ENVIRONMENT") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	logger := log.With().
		Str("component", componentName).
		Str("version", version).
		Logger()

	return &ComponentLogger{logger: logger}
}

func (cl *ComponentLogger) Info() *zerolog.Event {
	return cl.logger.Info()
}

func (cl *ComponentLogger) Error() *zerolog.Event {
	return cl.logger.Error()
}

func (cl *ComponentLogger) Warn() *zerolog.Event {
	return cl.logger.Warn()
}

func (cl *ComponentLogger) Debug() *zerolog.Event {
	return cl.logger.Debug()
}

// LogBatchProgress logs per-batch export progress with counts and timings.
func (cl *ComponentLogger) LogBatchProgress(collection string, batchDocs int, totalDocs int64, elapsed time.Duration) {
	cl.Info().
		Str("collection", collection).
		Int("batch_docs", batchDocs).
		Int64("total_docs", totalDocs).
		Dur("batch_time", elapsed).
		Msg("Exported batch")
}

// LogRunSummary logs the final run summary with totals and elapsed time.
func (cl *ComponentLogger) LogRunSummary(filesUploaded int, format string, elapsed time.Duration) {
	cl.Info().
		Int("files_uploaded", filesUploaded).
		Str("export_format", format).
		Dur("total_time", elapsed).
		Msg("Export run finished")
}
