// Package storage persists evaluation run snapshots to a JSON file with
// atomic writes and a bounded history of run summaries.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// defaultHistoryLimit bounds retained run summaries when the caller passes 0.
const defaultHistoryLimit = 50

// Run is one complete evaluation pass over the portfolio.
type Run struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Counts tallies positions per outcome.
	Counts map[models.Outcome]int `json:"counts"`
	// Results holds the full result for every position where candidates were found.
	Results []*models.RollResult `json:"results"`
}

// NewRun starts a run with a fresh identifier.
func NewRun() *Run {
	return &Run{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Counts:    make(map[models.Outcome]int),
	}
}

// Record tallies one position's evaluation into the run.
func (r *Run) Record(ev models.Evaluation) {
	r.Counts[ev.Outcome]++
	if ev.Outcome == models.OutcomeFound && ev.Result != nil {
		r.Results = append(r.Results, ev.Result)
	}
}

// Finish stamps the run's end time.
func (r *Run) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Positions returns how many positions the run evaluated.
func (r *Run) Positions() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// RunSummary is the compact history record kept per run.
type RunSummary struct {
	RunID      string                 `json:"run_id"`
	FinishedAt time.Time              `json:"finished_at"`
	Positions  int                    `json:"positions"`
	Found      int                    `json:"found"`
	Counts     map[models.Outcome]int `json:"counts"`
}

type storageData struct {
	LatestRun   *Run         `json:"latest_run"`
	History     []RunSummary `json:"history"`
	LastUpdated time.Time    `json:"last_updated"`
}

// JSONStorage persists run data to a single JSON file.
type JSONStorage struct {
	mu           sync.RWMutex
	filepath     string
	historyLimit int
	data         *storageData
}

// NewJSONStorage opens (or initializes) the snapshot file at path.
func NewJSONStorage(path string, historyLimit int) (*JSONStorage, error) {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	s := &JSONStorage{
		filepath:     path,
		historyLimit: historyLimit,
		data:         &storageData{},
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// RecordRun installs run as the latest snapshot, appends its summary, trims
// history to the limit and saves. Mutation and write share one critical
// section so the file on disk never reflects an interleaving two concurrent
// recorders could not observe in memory.
func (s *JSONStorage) RecordRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.LatestRun = run
	s.data.History = append(s.data.History, RunSummary{
		RunID:      run.RunID,
		FinishedAt: run.FinishedAt,
		Positions:  run.Positions(),
		Found:      run.Counts[models.OutcomeFound],
		Counts:     run.Counts,
	})
	if len(s.data.History) > s.historyLimit {
		s.data.History = s.data.History[len(s.data.History)-s.historyLimit:]
	}

	return s.saveLocked()
}

// LatestRun returns the most recent run snapshot, or nil before the first run.
func (s *JSONStorage) LatestRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.LatestRun
}

// History returns a copy of the run summaries, oldest first.
func (s *JSONStorage) History() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunSummary, len(s.data.History))
	copy(out, s.data.History)
	return out
}

// Load reads the snapshot file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &s.data)
}

// Save writes the snapshot atomically via a temp file and rename.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the snapshot; the caller must hold s.mu.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}
