// Package checkpoint persists resume state for the long-running collection
// stages so an interrupted run can pick up where it stopped.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// Checkpoint records which items a stage has already processed.
type Checkpoint struct {
	ProcessedIDs   []string `json:"processed_ids"`
	ProcessedCount int      `json:"processed_count"`
	LastBatch      int      `json:"last_batch"`
}

// Seen returns a set view of the processed ids.
func (c *Checkpoint) Seen() map[string]bool {
	seen := make(map[string]bool, len(c.ProcessedIDs))
	for _, id := range c.ProcessedIDs {
		seen[id] = true
	}
	return seen
}

// Mark records a batch of freshly processed ids.
func (c *Checkpoint) Mark(ids []string, batchNum int) {
	c.ProcessedIDs = append(c.ProcessedIDs, ids...)
	c.ProcessedCount += len(ids)
	c.LastBatch = batchNum
}

// Store reads and writes one checkpoint file.
type Store struct {
	path   string
	logger *logging.ComponentLogger
}

// NewStore creates a checkpoint store for the given file path.
func NewStore(path string, logger *logging.ComponentLogger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing or unreadable file yields an empty
// checkpoint: the stage simply starts from scratch.
func (s *Store) Load() *Checkpoint {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Checkpoint{}
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cannot read checkpoint, starting fresh")
		return &Checkpoint{}
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Corrupt checkpoint, starting fresh")
		return &Checkpoint{}
	}

	s.logger.Info().
		Int("processed_count", cp.ProcessedCount).
		Int("last_batch", cp.LastBatch).
		Msg("Loaded resume state")
	return &cp
}

// Save persists the checkpoint atomically via temp file + rename.
func (s *Store) Save(cp *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file after a clean completion.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
