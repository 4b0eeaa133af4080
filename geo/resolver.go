package geo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/checkpoint"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// Resolver runs the batch IP resolution loop: skip addresses the checkpoint
// already covers, look up the rest in batches, persist each batch, and update
// the checkpoint after every batch so a crash loses at most one batch of work.
type Resolver struct {
	lookup     Lookup
	sink       Sink
	checkpoint *checkpoint.Store
	batchSize  int
	logger     *logging.ComponentLogger
}

// NewResolver wires the resolution loop.
func NewResolver(lookup Lookup, sink Sink, cp *checkpoint.Store, batchSize int, logger *logging.ComponentLogger) *Resolver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Resolver{
		lookup:     lookup,
		sink:       sink,
		checkpoint: cp,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run resolves every address in ips that is not already checkpointed. On
// clean completion the checkpoint is cleared.
func (r *Resolver) Run(ips []string) error {
	state := r.checkpoint.Load()
	seen := state.Seen()

	var pending []string
	for _, ip := range ips {
		if !seen[ip] {
			pending = append(pending, ip)
		}
	}

	r.logger.Info().
		Int("total_ips", len(ips)).
		Int("already_processed", len(seen)).
		Int("remaining", len(pending)).
		Msg("Starting IP resolution")

	if len(pending) == 0 {
		r.logger.Info().Msg("All IPs already processed")
		return r.checkpoint.Clear()
	}

	totalBatches := (len(pending) + r.batchSize - 1) / r.batchSize
	start := time.Now()

	for i := 0; i < len(pending); i += r.batchSize {
		end := i + r.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]
		batchNum := i/r.batchSize + 1

		lookupStart := time.Now()
		resolved := make([]*Location, 0, len(batch))
		for _, ip := range batch {
			loc, err := r.lookup.Lookup(ip)
			if err != nil {
				r.logger.Warn().Err(err).Str("ip", ip).Msg("Lookup failed, skipping address")
				continue
			}
			if loc != nil {
				resolved = append(resolved, loc)
			}
		}
		lookupTime := time.Since(lookupStart)

		saveStart := time.Now()
		if len(resolved) > 0 {
			if err := r.sink.UpsertLocations(resolved); err != nil {
				return fmt.Errorf("persist batch %d: %w", batchNum, err)
			}
			ids := make([]string, len(resolved))
			for j, loc := range resolved {
				ids[j] = loc.IPAddress
			}
			state.Mark(ids, batchNum)
			if err := r.checkpoint.Save(state); err != nil {
				r.logger.Warn().Err(err).Msg("Checkpoint save failed")
			}
		}

		progress := float64(state.ProcessedCount) / float64(len(ips)) * 100
		r.logger.Info().
			Int("batch", batchNum).
			Int("total_batches", totalBatches).
			Int("resolved", len(resolved)).
			Int("batch_size", len(batch)).
			Dur("lookup_time", lookupTime).
			Dur("save_time", time.Since(saveStart)).
			Int("processed", state.ProcessedCount).
			Str("progress", fmt.Sprintf("%.1f%%", progress)).
			Msg("Resolved batch")
	}

	r.logger.Info().
		Int("total_processed", state.ProcessedCount).
		Dur("total_time", time.Since(start)).
		Msg("IP resolution completed")

	return r.checkpoint.Clear()
}

// ReadIPFile loads one IP per line from path. A missing file returns nil with
// no error so the caller falls back to extracting from the store.
func ReadIPFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ips []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ip := strings.TrimSpace(scanner.Text())
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips, scanner.Err()
}

// WriteIPFile saves one IP per line so reruns skip the extraction query.
func WriteIPFile(path string, ips []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, ip := range ips {
		if _, err := fmt.Fprintln(w, ip); err != nil {
			return err
		}
	}
	return w.Flush()
}
