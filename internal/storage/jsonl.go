// Package storage persists the tournament's append-only observation log and
// its last-known-good state snapshot.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/crashrank/internal/crash"
	"github.com/signalnine/crashrank/internal/rating"
)

// RuntimeState holds the orchestrator counters persisted alongside ratings so
// a resumed run picks up budget accounting where it left off.
type RuntimeState struct {
	EvaluatedMatchups int `json:"evaluated_matchups"`
	TotalEvaluations  int `json:"total_evaluations"`
	FailedEvaluations int `json:"failed_evaluations"`
	LastMilestone     int `json:"last_milestone"`
}

// SystemState is the full resumable snapshot: ranker state plus runtime
// counters. Saved after every successful evaluation.
type SystemState struct {
	Ranker  rating.State `json:"ranker_state"`
	Runtime RuntimeState `json:"runtime_state"`
	SavedAt time.Time    `json:"saved_at"`
}

// JSONL stores observations in an append-only JSONL file, the latest snapshot
// in a JSON file overwritten atomically on every save, and a historical
// snapshot log for retrospective analysis.
type JSONL struct {
	observationsPath string
	snapshotPath     string
	historyPath      string
}

func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &JSONL{
		observationsPath: filepath.Join(dir, "observations.jsonl"),
		snapshotPath:     filepath.Join(dir, "snapshot.json"),
		historyPath:      filepath.Join(dir, "snapshots.jsonl"),
	}, nil
}

// AppendObservation adds one evaluated matchup to the log. Never overwrites.
func (s *JSONL) AppendObservation(res crash.OrdinalResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling observation: %w", err)
	}
	f, err := os.OpenFile(s.observationsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening observations log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending observation: %w", err)
	}
	return nil
}

// LoadObservations returns all persisted results. A corrupted line is skipped
// with a warning; corruption of one record never fails the load.
func (s *JSONL) LoadObservations() ([]crash.OrdinalResult, error) {
	f, err := os.Open(s.observationsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening observations log: %w", err)
	}
	defer f.Close()

	var results []crash.OrdinalResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var res crash.OrdinalResult
		if err := json.Unmarshal(text, &res); err != nil {
			log.Printf("warning: skipping corrupted observation at %s:%d: %v", s.observationsPath, line, err)
			continue
		}
		if err := res.Validate(); err != nil {
			log.Printf("warning: skipping invalid observation at %s:%d: %v", s.observationsPath, line, err)
			continue
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading observations log: %w", err)
	}
	return results, nil
}

// SaveSnapshot overwrites the latest snapshot (write-temp-then-rename, so a
// crash mid-write never corrupts the last good state) and appends a copy to
// the historical log.
func (s *JSONL) SaveSnapshot(state SystemState) error {
	state.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	// History failures are non-fatal: the latest snapshot is what resume
	// correctness depends on.
	line, err := json.Marshal(state)
	if err == nil {
		if f, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			f.Write(append(line, '\n'))
			f.Close()
		} else {
			log.Printf("warning: appending snapshot history: %v", err)
		}
	}
	return nil
}

// LoadSnapshot returns the latest snapshot, or nil when none exists. A
// malformed snapshot is reported as "no snapshot" so a fresh run can proceed.
func (s *JSONL) LoadSnapshot() (*SystemState, error) {
	data, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	state, err := decodeSystemState(data)
	if err != nil {
		log.Printf("warning: ignoring malformed snapshot %s: %v", s.snapshotPath, err)
		return nil, nil
	}
	return state, nil
}

// decodeSystemState accepts the current nested layout and, for old runs, a
// bare ranker state payload with no runtime block.
func decodeSystemState(data []byte) (*SystemState, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	if raw, ok := probe["ranker_state"]; ok {
		ranker, err := rating.DecodeState(raw)
		if err != nil {
			return nil, err
		}
		state := &SystemState{Ranker: ranker}
		if rawRuntime, ok := probe["runtime_state"]; ok {
			if err := json.Unmarshal(rawRuntime, &state.Runtime); err != nil {
				return nil, fmt.Errorf("parsing runtime state: %w", err)
			}
		}
		if rawSavedAt, ok := probe["saved_at"]; ok {
			if err := json.Unmarshal(rawSavedAt, &state.SavedAt); err != nil {
				return nil, fmt.Errorf("parsing snapshot timestamp: %w", err)
			}
		}
		return state, nil
	}

	ranker, err := rating.DecodeState(data)
	if err != nil {
		return nil, err
	}
	return &SystemState{Ranker: ranker}, nil
}
