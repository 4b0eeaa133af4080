package export

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
)

// DocumentStore opens cursors over named collections. Cursors are expected to
// run without a server-side timeout; an export may take arbitrarily long.
type DocumentStore interface {
	Collection(ctx context.Context, name string) (Cursor, error)
}

// OutcomeStatus classifies how one collection's export ended.
type OutcomeStatus int

const (
	// StatusExported means at least one document was written to a file.
	StatusExported OutcomeStatus = iota
	// StatusEmpty means the collection had no documents; no file was produced.
	StatusEmpty
	// StatusFailed means the export aborted; the file, if opened, was closed.
	StatusFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusExported:
		return "exported"
	case StatusEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Outcome is the per-collection export result the orchestrator branches on.
type Outcome struct {
	Collection string
	Status     OutcomeStatus
	Path       string
	Documents  int64
	Err        error
}

// Orchestrator drives Accumulator, Reconciler and ChunkedWriter for each
// configured collection. Collections are isolated: one failure does not abort
// the rest of the run.
type Orchestrator struct {
	store      DocumentStore
	reconciler *Reconciler
	batchSize  int
	tempDir    string
	format     string
	logger     *logging.ComponentLogger
	metrics    *metrics.Metrics
}

// NewOrchestrator wires the export pipeline for a run.
func NewOrchestrator(store DocumentStore, reconciler *Reconciler, batchSize int, tempDir, format string, logger *logging.ComponentLogger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		store:      store,
		reconciler: reconciler,
		batchSize:  batchSize,
		tempDir:    tempDir,
		format:     format,
		logger:     logger,
		metrics:    m,
	}
}

// ExportAll exports every named collection and returns one outcome per
// collection, in input order.
func (o *Orchestrator) ExportAll(ctx context.Context, collections []string) []Outcome {
	outcomes := make([]Outcome, 0, len(collections))
	for _, name := range collections {
		out := o.exportCollection(ctx, name)
		o.metrics.RecordCollectionOutcome(out.Status.String())
		switch out.Status {
		case StatusExported:
			o.logger.Info().
				Str("collection", name).
				Str("path", out.Path).
				Int64("documents", out.Documents).
				Msg("Collection exported")
		case StatusEmpty:
			o.logger.Warn().
				Str("collection", name).
				Msg("Collection is empty, no file created")
		case StatusFailed:
			o.logger.Error().
				Err(out.Err).
				Str("collection", name).
				Msg("Collection export failed")
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// ProducedFiles returns the local paths of collections that yielded at least
// one document.
func ProducedFiles(outcomes []Outcome) []string {
	var paths []string
	for _, out := range outcomes {
		if out.Status == StatusExported {
			paths = append(paths, out.Path)
		}
	}
	return paths
}

func (o *Orchestrator) exportCollection(ctx context.Context, name string) Outcome {
	path := filepath.Join(o.tempDir, name+"."+o.format)
	o.logger.Info().
		Str("collection", name).
		Str("path", path).
		Int("batch_size", o.batchSize).
		Msg("Starting chunked export")

	cursor, err := o.store.Collection(ctx, name)
	if err != nil {
		return Outcome{Collection: name, Status: StatusFailed, Err: fmt.Errorf("open cursor: %w", err)}
	}
	defer cursor.Close(ctx)

	writer := NewChunkedWriter(path, o.logger)
	// The file handle must be released on every exit path.
	defer writer.Close()

	acc := NewAccumulator(cursor, o.batchSize)
	for {
		batchStart := time.Now()
		batch, err := acc.Next(ctx)
		if err != nil {
			return Outcome{Collection: name, Status: StatusFailed, Err: fmt.Errorf("read batch: %w", err)}
		}
		if batch == nil {
			break
		}

		table, err := o.reconciler.Clean(batch)
		if err != nil {
			return Outcome{Collection: name, Status: StatusFailed, Err: fmt.Errorf("reconcile batch: %w", err)}
		}
		if err := writer.WriteTable(table); err != nil {
			return Outcome{Collection: name, Status: StatusFailed, Err: err}
		}

		o.metrics.RecordDocumentsExported(name, int64(len(batch)))
		o.metrics.RecordBatchWritten(name, time.Since(batchStart))
		o.logger.LogBatchProgress(name, len(batch), writer.Rows(), time.Since(batchStart))
	}

	if !writer.Opened() {
		return Outcome{Collection: name, Status: StatusEmpty}
	}
	if err := writer.Close(); err != nil {
		return Outcome{Collection: name, Status: StatusFailed, Err: err}
	}
	return Outcome{Collection: name, Status: StatusExported, Path: path, Documents: writer.Rows()}
}
