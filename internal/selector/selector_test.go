package selector

import (
	"math/rand"
	"testing"

	"github.com/signalnine/crashrank/internal/crash"
	"github.com/signalnine/crashrank/internal/rating"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestRandomSelectMatchup(t *testing.T) {
	engine := rating.NewEngine(rating.DefaultParams())
	s := NewRandom(engine, testRand())

	candidates := []string{"a", "b", "c", "d", "e"}
	matchup := s.SelectMatchup(candidates, 3)
	if len(matchup) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(matchup))
	}
	seen := map[string]bool{}
	for _, id := range matchup {
		if seen[id] {
			t.Errorf("duplicate id %q in matchup", id)
		}
		seen[id] = true
	}
}

func TestRandomShrinksToAvailable(t *testing.T) {
	engine := rating.NewEngine(rating.DefaultParams())
	s := NewRandom(engine, testRand())

	matchup := s.SelectMatchup([]string{"a", "b"}, 4)
	if len(matchup) != 2 {
		t.Errorf("expected matchup of 2, got %d", len(matchup))
	}
}

func TestRandomInsufficientCandidates(t *testing.T) {
	engine := rating.NewEngine(rating.DefaultParams())
	s := NewRandom(engine, testRand())

	if got := s.SelectMatchup([]string{"a"}, 3); got != nil {
		t.Errorf("expected nil matchup, got %v", got)
	}
	if got := s.SelectMatchup(nil, 3); got != nil {
		t.Errorf("expected nil matchup for empty candidates, got %v", got)
	}
}

func TestLeastRunsPrefersUnevaluated(t *testing.T) {
	engine := rating.NewEngine(rating.DefaultParams())
	// a and b have been judged once; c and d never.
	engine.Update(crash.OrdinalResult{OrderedIDs: []string{"a", "b"}, JudgeID: "test"}, 1.0)

	s := NewLeastRuns(engine, testRand())
	matchup := s.SelectMatchup([]string{"a", "b", "c", "d"}, 2)
	if len(matchup) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(matchup))
	}
	for _, id := range matchup {
		if id == "a" || id == "b" {
			t.Errorf("expected unevaluated crashes first, got %v", matchup)
		}
	}
}
