// Package export implements the chunked, schema-reconciling export pipeline:
// documents are streamed from a store cursor, buffered into fixed-size
// batches, reconciled into homogeneously-typed columns, and appended to one
// Parquet file per collection under a master schema fixed by the first batch.
package export

import (
	"context"
	"sort"
)

// Record is one source document with the identity field already stripped.
// It lives only for the duration of the batch that holds it.
type Record map[string]any

// Cursor is a sequential, forward-only stream of records. There is no random
// access and no guarantee the stream can be re-read.
type Cursor interface {
	// Next returns the next record. The bool is false once the stream is
	// exhausted; a non-nil error means the read failed.
	Next(ctx context.Context) (Record, bool, error)

	// Close releases the cursor.
	Close(ctx context.Context) error
}

// columnNames returns the sorted union of field names across a batch.
// Sorting keeps column order deterministic regardless of map iteration.
func columnNames(batch []Record) []string {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range batch {
		for name := range rec {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
