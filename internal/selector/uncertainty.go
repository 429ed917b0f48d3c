package selector

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/signalnine/crashrank/internal/rating"
)

const duplicateRetries = 3

// UncertaintyOptions tune the uncertainty-biased selector.
type UncertaintyOptions struct {
	// Temperature controls candidate-pool sampling sharpness: 0 is a
	// deterministic argmax over sigma (ties broken by input order), large
	// values approach uniform sampling.
	Temperature float64
	// DeltaMu bounds how far a neighbor's mu may be from the target's mu.
	DeltaMu float64
	// PoolSize is the uncertain-candidate pool size; 0 means 5x matchup size.
	PoolSize int
	// MaxEvalsPerCrash excludes crashes at or above this many evaluations
	// from selection; 0 means unlimited.
	MaxEvalsPerCrash int
	// Rand supplies determinism for tests; nil gets a time-seeded source.
	Rand *rand.Rand
}

// Uncertainty focuses matchups on high-sigma crashes and fills the rest of
// each group with similarly-rated neighbors, which yields more information
// than comparing a clear winner to a clear loser.
type Uncertainty struct {
	engine *rating.Engine
	opts   UncertaintyOptions
	rng    *rand.Rand
}

func NewUncertainty(engine *rating.Engine, opts UncertaintyOptions) *Uncertainty {
	if opts.DeltaMu <= 0 {
		opts.DeltaMu = 1.0
	}
	return &Uncertainty{engine: engine, opts: opts, rng: newRand(opts.Rand)}
}

func (s *Uncertainty) SelectMatchup(candidates []string, size int) []string {
	groups := s.NextGroups(candidates, size, 1)
	if len(groups) == 0 {
		return nil
	}
	return groups[0]
}

// NextGroups proposes up to count matchups. No two groups in one batch are
// identical as unordered sets; generation stops early once duplicates keep
// recurring or candidates run out.
func (s *Uncertainty) NextGroups(candidates []string, size, count int) [][]string {
	if len(candidates) < 2 {
		return nil
	}

	proposed := map[string]int{}
	eligible := s.eligibleIDs(candidates, proposed)
	if len(eligible) < 2 {
		return nil
	}

	poolSize := s.opts.PoolSize
	if poolSize <= 0 {
		poolSize = 5 * size
	}
	pool := s.samplePool(eligible, poolSize)

	var groups [][]string
	seen := map[string]bool{}
	targetUse := map[string]int{}

	for len(groups) < count {
		group := s.generateGroup(pool, candidates, proposed, targetUse, size)
		if group == nil {
			break
		}
		key := groupKey(group)
		if seen[key] {
			retried := false
			for i := 0; i < duplicateRetries; i++ {
				group = s.generateGroup(pool, candidates, proposed, targetUse, size)
				if group == nil {
					break
				}
				key = groupKey(group)
				if !seen[key] {
					retried = true
					break
				}
			}
			if !retried {
				break
			}
		}
		seen[key] = true
		groups = append(groups, group)
		for _, id := range group {
			proposed[id]++
		}
	}
	return groups
}

// eligibleIDs filters out crashes at or above the evaluation cap, counting
// both applied evaluations and proposals already made in this batch.
func (s *Uncertainty) eligibleIDs(candidates []string, proposed map[string]int) []string {
	if s.opts.MaxEvalsPerCrash <= 0 {
		return candidates
	}
	var out []string
	for _, id := range candidates {
		if s.engine.EvalCount(id)+proposed[id] < s.opts.MaxEvalsPerCrash {
			out = append(out, id)
		}
	}
	return out
}

// samplePool draws up to n ids without replacement with probability
// proportional to sigma^(1/T). T=0 degenerates to a deterministic
// highest-sigma-first ordering with first-encountered tie-breaking.
func (s *Uncertainty) samplePool(ids []string, n int) []string {
	if n > len(ids) {
		n = len(ids)
	}

	if s.opts.Temperature <= 0 {
		ordered := append([]string(nil), ids...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return s.engine.Uncertainty(ordered[i]) > s.engine.Uncertainty(ordered[j])
		})
		return ordered[:n]
	}

	exponent := 1.0 / s.opts.Temperature
	remaining := append([]string(nil), ids...)
	weights := make([]float64, len(remaining))
	for i, id := range remaining {
		w := math.Pow(s.engine.Uncertainty(id), exponent)
		if w <= 0 || math.IsInf(w, 0) || math.IsNaN(w) {
			w = math.SmallestNonzeroFloat64
		}
		weights[i] = w
	}

	pool := make([]string, 0, n)
	for len(pool) < n {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		pick := s.rng.Float64() * total
		idx := len(remaining) - 1
		for i, w := range weights {
			pick -= w
			if pick <= 0 {
				idx = i
				break
			}
		}
		pool = append(pool, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
	}
	return pool
}

// generateGroup builds one matchup: least-used pool member as target, filled
// with neighbors whose mu lies within DeltaMu of the target's, padded with
// random eligible crashes when too few neighbors exist.
func (s *Uncertainty) generateGroup(pool, candidates []string, proposed, targetUse map[string]int, size int) []string {
	available := s.eligibleIDs(pool, proposed)
	if len(available) == 0 {
		available = s.eligibleIDs(candidates, proposed)
	}
	if len(available) == 0 {
		return nil
	}

	target := available[0]
	for _, id := range available {
		if targetUse[id] < targetUse[target] {
			target = id
		}
	}
	targetUse[target]++

	group := []string{target}
	inGroup := map[string]bool{target: true}

	targetMu := s.engine.Score(target)
	var nearby []string
	for _, id := range s.eligibleIDs(candidates, proposed) {
		if inGroup[id] {
			continue
		}
		if math.Abs(s.engine.Score(id)-targetMu) <= s.opts.DeltaMu {
			nearby = append(nearby, id)
		}
	}
	s.rng.Shuffle(len(nearby), func(i, j int) { nearby[i], nearby[j] = nearby[j], nearby[i] })
	for _, id := range nearby {
		if len(group) >= size {
			break
		}
		group = append(group, id)
		inGroup[id] = true
	}

	if len(group) < size {
		var rest []string
		for _, id := range s.eligibleIDs(candidates, proposed) {
			if !inGroup[id] {
				rest = append(rest, id)
			}
		}
		s.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		for _, id := range rest {
			if len(group) >= size {
				break
			}
			group = append(group, id)
			inGroup[id] = true
		}
	}

	if len(group) < 2 {
		return nil
	}
	return group
}

func groupKey(group []string) string {
	sorted := append([]string(nil), group...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
