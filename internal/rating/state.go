package rating

import (
	"encoding/json"
	"fmt"
)

// State is the serializable snapshot of an engine: ratings plus statistics.
type State struct {
	Ratings    map[string]Rating `json:"ratings"`
	Statistics Statistics        `json:"statistics"`
}

// DecodeState decodes a persisted ranker state. Two formats exist on disk:
// the current nested form {"ratings": ..., "statistics": ...} and a legacy
// flat map of crash_id -> {mu, sigma}. Both decode to the canonical State so
// the rest of the system never branches on format.
func DecodeState(data []byte) (State, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return State{}, fmt.Errorf("parsing ranker state: %w", err)
	}

	if _, ok := probe["ratings"]; ok {
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			return State{}, fmt.Errorf("parsing ranker state: %w", err)
		}
		if s.Ratings == nil {
			s.Ratings = map[string]Rating{}
		}
		return s, nil
	}

	// Legacy flat format: the whole payload is the ratings map.
	var ratings map[string]Rating
	if err := json.Unmarshal(data, &ratings); err != nil {
		return State{}, fmt.Errorf("parsing legacy ranker state: %w", err)
	}
	if ratings == nil {
		ratings = map[string]Rating{}
	}
	return State{Ratings: ratings, Statistics: newStatistics()}, nil
}
