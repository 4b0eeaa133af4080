package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// ErrSchemaConflict reports a batch whose column set or types cannot be made
// to match the master schema fixed by the first batch of the run.
var ErrSchemaConflict = errors.New("batch does not conform to master schema")

// ChunkedWriter owns the lifecycle of one Parquet output file across the
// batches of a single collection export. The file is opened lazily when the
// first non-empty batch arrives, its schema becomes the master schema for the
// run, every later batch must conform to it, and the file is closed exactly
// once. If no batch ever arrives, no file is produced.
type ChunkedWriter struct {
	path   string
	logger *logging.ComponentLogger
	alloc  memory.Allocator

	file   *os.File
	writer *pqarrow.FileWriter
	schema *arrow.Schema

	rows    int64
	closed  bool
	created time.Time
}

// NewChunkedWriter prepares a writer for the given output path. No file is
// created until the first non-empty batch is written.
func NewChunkedWriter(path string, logger *logging.ComponentLogger) *ChunkedWriter {
	return &ChunkedWriter{
		path:   path,
		logger: logger,
		alloc:  memory.NewGoAllocator(),
	}
}

// Opened reports whether the output file exists, i.e. at least one non-empty
// batch has been written.
func (w *ChunkedWriter) Opened() bool {
	return w.writer != nil || w.closed && w.rows > 0
}

// Rows returns the number of rows written so far.
func (w *ChunkedWriter) Rows() int64 {
	return w.rows
}

// Path returns the output file path.
func (w *ChunkedWriter) Path() string {
	return w.path
}

// WriteTable appends one reconciled batch. The first non-empty table fixes
// the master schema and opens the file; later tables must carry the same
// column set and kinds or the write fails with ErrSchemaConflict. Empty
// tables are ignored.
func (w *ChunkedWriter) WriteTable(t *Table) error {
	if w.closed {
		return fmt.Errorf("writer for %s already closed", w.path)
	}
	if t == nil || t.NumRows == 0 {
		return nil
	}

	if w.writer == nil {
		if err := w.open(t); err != nil {
			return err
		}
	} else if err := w.conform(t); err != nil {
		return err
	}

	rec, err := w.buildRecord(t)
	if err != nil {
		return err
	}
	defer rec.Release()

	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("write batch to %s: %w", w.path, err)
	}
	w.rows += int64(t.NumRows)
	return nil
}

// open derives the master schema from the first batch and creates the file.
func (w *ChunkedWriter) open(t *Table) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fields := make([]arrow.Field, len(t.Columns))
	for i, col := range t.Columns {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowType(col.Kind), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	props := parquet.NewWriterProperties(
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy("gcsexport"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, file, props, arrowProps)
	if err != nil {
		file.Close()
		os.Remove(w.path)
		return fmt.Errorf("create parquet writer: %w", err)
	}

	w.file = file
	w.writer = writer
	w.schema = schema
	w.created = time.Now()

	w.logger.Info().
		Str("path", w.path).
		Int("schema_fields", len(schema.Fields())).
		Msg("Opened Parquet file with master schema")
	return nil
}

// conform verifies a later batch against the master schema. The reconciler
// already made every column homogeneous, so conformance is an exact match of
// names and kinds; anything else is schema drift and fails the run.
func (w *ChunkedWriter) conform(t *Table) error {
	if len(t.Columns) != len(w.schema.Fields()) {
		return fmt.Errorf("%w: batch has %d columns, master schema has %d",
			ErrSchemaConflict, len(t.Columns), len(w.schema.Fields()))
	}
	for i, field := range w.schema.Fields() {
		col := &t.Columns[i]
		if col.Name != field.Name {
			return fmt.Errorf("%w: column %d is %q, master schema expects %q",
				ErrSchemaConflict, i, col.Name, field.Name)
		}
		if arrowType(col.Kind).ID() != field.Type.ID() {
			return fmt.Errorf("%w: column %q is %s, master schema expects %s",
				ErrSchemaConflict, col.Name, col.Kind, field.Type.Name())
		}
	}
	return nil
}

func (w *ChunkedWriter) buildRecord(t *Table) (arrow.Record, error) {
	b := array.NewRecordBuilder(w.alloc, w.schema)
	defer b.Release()

	for i := range w.schema.Fields() {
		col := &t.Columns[i]
		switch col.Kind {
		case KindNumeric:
			fb := b.Field(i).(*array.Float64Builder)
			for j := 0; j < t.NumRows; j++ {
				if col.Nulls[j] {
					fb.AppendNull()
				} else {
					fb.Append(col.Nums[j])
				}
			}
		case KindText:
			sb := b.Field(i).(*array.StringBuilder)
			for j := 0; j < t.NumRows; j++ {
				if col.Nulls[j] {
					sb.AppendNull()
				} else {
					sb.Append(col.Text[j])
				}
			}
		default:
			return nil, fmt.Errorf("column %q: unknown kind %d", col.Name, col.Kind)
		}
	}
	return b.NewRecord(), nil
}

// Close closes the Parquet writer and underlying file. It is safe to call on
// every exit path: closing an unopened or already-closed writer is a no-op.
func (w *ChunkedWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.writer == nil {
		return nil
	}

	// Closing the pqarrow writer also closes the underlying file.
	err := w.writer.Close()
	w.writer = nil

	w.logger.Info().
		Str("path", w.path).
		Int64("rows", w.rows).
		Dur("duration", time.Since(w.created)).
		Msg("Closed Parquet file")

	if err != nil {
		return fmt.Errorf("close parquet writer for %s: %w", w.path, err)
	}
	return nil
}

func arrowType(k ColumnKind) arrow.DataType {
	if k == KindNumeric {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}
