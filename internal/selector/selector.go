// Package selector decides which crashes to group into the next matchup.
package selector

import (
	"math/rand"
	"sort"
	"time"

	"github.com/signalnine/crashrank/internal/rating"
)

// Selector proposes the next matchup from the given candidate ids. Returns
// nil when no feasible matchup exists (fewer than 2 candidates); otherwise
// returns the largest feasible subset up to size.
type Selector interface {
	SelectMatchup(candidates []string, size int) []string
}

func newRand(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Random draws matchups uniformly. Baseline strategy; keeps an engine
// reference only for interface symmetry with the rating-aware selectors.
type Random struct {
	engine *rating.Engine
	rng    *rand.Rand
}

func NewRandom(engine *rating.Engine, rng *rand.Rand) *Random {
	return &Random{engine: engine, rng: newRand(rng)}
}

func (s *Random) SelectMatchup(candidates []string, size int) []string {
	if len(candidates) < 2 {
		return nil
	}
	if size > len(candidates) {
		size = len(candidates)
	}
	perm := s.rng.Perm(len(candidates))
	matchup := make([]string, size)
	for i := 0; i < size; i++ {
		matchup[i] = candidates[perm[i]]
	}
	return matchup
}

// LeastRuns prioritizes crashes with the fewest evaluations, randomized
// within each evaluation-count bucket. Keeps coverage even before any crash
// gets judged many more times than the others.
type LeastRuns struct {
	engine *rating.Engine
	rng    *rand.Rand
}

func NewLeastRuns(engine *rating.Engine, rng *rand.Rand) *LeastRuns {
	return &LeastRuns{engine: engine, rng: newRand(rng)}
}

func (s *LeastRuns) SelectMatchup(candidates []string, size int) []string {
	if len(candidates) < 2 {
		return nil
	}
	if size > len(candidates) {
		size = len(candidates)
	}

	buckets := map[int][]string{}
	for _, id := range candidates {
		n := s.engine.EvalCount(id)
		buckets[n] = append(buckets[n], id)
	}
	counts := make([]int, 0, len(buckets))
	for n := range buckets {
		counts = append(counts, n)
	}
	sort.Ints(counts)

	matchup := make([]string, 0, size)
	for _, n := range counts {
		bucket := buckets[n]
		s.rng.Shuffle(len(bucket), func(i, j int) {
			bucket[i], bucket[j] = bucket[j], bucket[i]
		})
		need := size - len(matchup)
		if need > len(bucket) {
			need = len(bucket)
		}
		matchup = append(matchup, bucket[:need]...)
		if len(matchup) >= size {
			break
		}
	}
	return matchup
}
