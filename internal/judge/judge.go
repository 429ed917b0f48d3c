// Package judge holds the judge implementations: black boxes that take a
// group of crashes and return a total order, best first. All judges are safe
// to call concurrently on disjoint crash sets.
package judge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/crashrank/internal/crash"
)

// verdict is the wire format judges produce: the ranked ids plus an optional
// free-form rationale.
type verdict struct {
	Ordered   []string `json:"ordered"`
	Rationale string   `json:"rationale,omitempty"`
}

func newResult(judgeID string, orderedIDs []string, rawOutput string, parsed map[string]any) crash.OrdinalResult {
	return crash.OrdinalResult{
		EvalID:       uuid.NewString(),
		OrderedIDs:   orderedIDs,
		RawOutput:    rawOutput,
		ParsedResult: parsed,
		JudgeID:      judgeID,
		Timestamp:    time.Now().UTC(),
	}
}

func matchupIDs(crashes []crash.Crash) []string {
	ids := make([]string, len(crashes))
	for i, c := range crashes {
		ids[i] = c.ID
	}
	return ids
}

// parseVerdict extracts the verdict from judge output: either the whole
// output is a JSON object, or one line of it is (agents tend to chat around
// their answer). The last parseable line wins.
func parseVerdict(output string) (*verdict, error) {
	trimmed := strings.TrimSpace(output)
	var v verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil && len(v.Ordered) > 0 {
		return &v, nil
	}

	var found *verdict
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var v verdict
		if err := json.Unmarshal([]byte(line), &v); err == nil && len(v.Ordered) > 0 {
			found = &v
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no verdict JSON with an %q array in judge output", "ordered")
	}
	return found, nil
}
