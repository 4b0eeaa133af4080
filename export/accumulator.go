package export

import "context"

// DefaultBatchSize is the number of documents buffered per batch when the
// configuration does not say otherwise.
const DefaultBatchSize = 10000

// Accumulator buffers records from a cursor into fixed-size batches. It holds
// at most one batch plus the cursor state in memory, so collections far larger
// than available memory stream through without growth.
type Accumulator struct {
	cursor Cursor
	size   int
	done   bool
}

// NewAccumulator wraps a cursor with batch buffering. A non-positive size
// falls back to DefaultBatchSize.
func NewAccumulator(cursor Cursor, size int) *Accumulator {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Accumulator{cursor: cursor, size: size}
}

// Next returns the next batch of up to the configured size. The final batch
// may be shorter. A nil batch with nil error means the stream is exhausted.
func (a *Accumulator) Next(ctx context.Context) ([]Record, error) {
	if a.done {
		return nil, nil
	}

	batch := make([]Record, 0, a.size)
	for len(batch) < a.size {
		rec, ok, err := a.cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.done = true
			break
		}
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil, nil
	}
	return batch, nil
}
