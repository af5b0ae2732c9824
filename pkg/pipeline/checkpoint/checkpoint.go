// Package checkpoint persists enrichment progress so an interrupted run can resume.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrCorrupt is returned by Load when the checkpoint file exists but cannot be decoded.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// Stats are the run counters recorded alongside the resume offset.
type Stats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// State is the on-disk checkpoint document.
type State struct {
	LastRow   int    `json:"last_row"`
	Timestamp string `json:"timestamp"`
	Stats     Stats  `json:"stats"`
}

// PathFor derives the checkpoint location from an output CSV path:
// "out.csv" becomes "out_checkpoint.json".
func PathFor(outputPath string) string {
	if strings.HasSuffix(outputPath, ".csv") {
		return strings.TrimSuffix(outputPath, ".csv") + "_checkpoint.json"
	}
	return outputPath + "_checkpoint.json"
}

// Store reads and writes a single checkpoint file.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Save replaces the checkpoint with lastRow and stats. The document is written to a
// temporary file in the same directory and renamed into place, so a reader sees
// either the previous checkpoint or the new one.
func (s *Store) Save(lastRow int, stats Stats) error {
	b, err := json.MarshalIndent(State{
		LastRow:   lastRow,
		Timestamp: s.now().Format(time.RFC3339),
		Stats:     stats,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored resume offset, or 0 when no checkpoint exists.
func (s *Store) Load() (int, error) {
	st, ok, err := s.LoadState()
	if err != nil || !ok {
		return 0, err
	}
	return st.LastRow, nil
}

// LoadState returns the whole checkpoint document. ok is false when no file exists.
func (s *Store) LoadState() (State, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if st.LastRow < 0 {
		return State{}, false, fmt.Errorf("%w: %s: negative last_row %d", ErrCorrupt, s.path, st.LastRow)
	}
	return st, true, nil
}
