package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

func testLogger() *logging.ComponentLogger {
	return logging.NewComponentLogger("export-test", "test")
}

func numericTable(name string, vals ...float64) *Table {
	col := Column{Name: name, Kind: KindNumeric, Nums: vals, Nulls: make([]bool, len(vals))}
	return &Table{Columns: []Column{col}, NumRows: len(vals)}
}

func textTable(name string, vals ...string) *Table {
	col := Column{Name: name, Kind: KindText, Text: vals, Nulls: make([]bool, len(vals))}
	return &Table{Columns: []Column{col}, NumRows: len(vals)}
}

// TestChunkedWriter_NoBatchNoFile verifies that a writer that never sees a
// batch creates nothing on disk.
func TestChunkedWriter_NoBatchNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	w := NewChunkedWriter(path, testLogger())

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Opened() {
		t.Error("Opened() = true for a writer that saw no batch")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file %s exists, want no file", path)
	}
}

// TestChunkedWriter_EmptyTableIgnored verifies an empty table does not open
// the file or fix a schema.
func TestChunkedWriter_EmptyTableIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewChunkedWriter(path, testLogger())
	defer w.Close()

	if err := w.WriteTable(&Table{}); err != nil {
		t.Fatalf("WriteTable(empty) failed: %v", err)
	}
	if w.Opened() {
		t.Error("empty table opened the file")
	}

	// A later real batch still gets to fix the schema.
	if err := w.WriteTable(textTable("a", "x")); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	if !w.Opened() || w.Rows() != 1 {
		t.Errorf("Opened=%v Rows=%d after first real batch", w.Opened(), w.Rows())
	}
}

// TestChunkedWriter_MultiBatchAppend verifies conforming batches accumulate
// in one file.
func TestChunkedWriter_MultiBatchAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewChunkedWriter(path, testLogger())

	if err := w.WriteTable(numericTable("n", 1, 2, 3)); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if err := w.WriteTable(numericTable("n", 4, 5)); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if w.Rows() != 5 {
		t.Errorf("Rows = %d, want 5", w.Rows())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output file is empty")
	}
}

// TestChunkedWriter_SchemaConflict verifies a later batch with a different
// type for an established column fails with ErrSchemaConflict and leaves the
// earlier rows counted.
func TestChunkedWriter_SchemaConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewChunkedWriter(path, testLogger())
	defer w.Close()

	if err := w.WriteTable(numericTable("a", 1, 2)); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	err := w.WriteTable(textTable("a", "x"))
	if !errors.Is(err, ErrSchemaConflict) {
		t.Fatalf("got %v, want ErrSchemaConflict", err)
	}
	if w.Rows() != 2 {
		t.Errorf("Rows = %d after conflict, want 2 from first batch", w.Rows())
	}
}

// TestChunkedWriter_ColumnSetConflict verifies a batch with extra or missing
// columns is rejected.
func TestChunkedWriter_ColumnSetConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewChunkedWriter(path, testLogger())
	defer w.Close()

	if err := w.WriteTable(numericTable("a", 1)); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}

	wide := &Table{
		Columns: []Column{
			{Name: "a", Kind: KindNumeric, Nums: []float64{2}, Nulls: []bool{false}},
			{Name: "b", Kind: KindText, Text: []string{"x"}, Nulls: []bool{false}},
		},
		NumRows: 1,
	}
	if err := w.WriteTable(wide); !errors.Is(err, ErrSchemaConflict) {
		t.Fatalf("got %v, want ErrSchemaConflict", err)
	}
}

// TestChunkedWriter_CloseIdempotent verifies Close can run on every exit path
// and that writing after Close fails.
func TestChunkedWriter_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewChunkedWriter(path, testLogger())

	if err := w.WriteTable(textTable("a", "x")); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := w.WriteTable(textTable("a", "y")); err == nil {
		t.Fatal("WriteTable after Close succeeded, want error")
	}
	if !w.Opened() {
		t.Error("Opened() = false after closing a written file")
	}
}
