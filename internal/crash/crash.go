package crash

import (
	"fmt"
	"sort"
	"time"
)

// Crash is an opaque handle to a crash artifact on disk. The tournament
// never looks inside the file; only judges do.
type Crash struct {
	ID        string    `json:"crash_id"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

func New(id, filePath string) (Crash, error) {
	if id == "" {
		return Crash{}, fmt.Errorf("crash_id cannot be empty")
	}
	if filePath == "" {
		return Crash{}, fmt.Errorf("crash %q: file_path cannot be empty", id)
	}
	return Crash{ID: id, FilePath: filePath, CreatedAt: time.Now().UTC()}, nil
}

// OrdinalResult is the outcome of one matchup evaluation: a total order over
// the matchup's members, best first. Constructed by a judge, consumed once by
// the rating engine and once by storage, never mutated.
type OrdinalResult struct {
	EvalID       string         `json:"eval_id"`
	OrderedIDs   []string       `json:"ordered_ids"`
	RawOutput    string         `json:"raw_output"`
	ParsedResult map[string]any `json:"parsed_result,omitempty"`
	JudgeID      string         `json:"judge_id"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Validate checks the structural invariants: non-empty, no duplicates.
func (r *OrdinalResult) Validate() error {
	if len(r.OrderedIDs) == 0 {
		return fmt.Errorf("ordered_ids cannot be empty")
	}
	seen := make(map[string]bool, len(r.OrderedIDs))
	for _, id := range r.OrderedIDs {
		if id == "" {
			return fmt.Errorf("ordered_ids contains an empty id")
		}
		if seen[id] {
			return fmt.Errorf("ordered_ids contains duplicate id %q", id)
		}
		seen[id] = true
	}
	return nil
}

// ValidateOrder checks that orderedIDs is a permutation of matchup.
// Judges must rank exactly the crashes they were given.
func ValidateOrder(orderedIDs, matchup []string) error {
	if len(orderedIDs) != len(matchup) {
		return fmt.Errorf("ranked %d ids, matchup has %d", len(orderedIDs), len(matchup))
	}
	a := append([]string(nil), orderedIDs...)
	b := append([]string(nil), matchup...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("ranked ids are not a permutation of the matchup (got %q, want %q)", a[i], b[i])
		}
	}
	return nil
}
