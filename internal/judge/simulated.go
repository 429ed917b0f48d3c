package judge

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/crashrank/internal/crash"
)

// Simulated ranks crashes by ground-truth exploitability scores with
// configurable Gaussian noise. Used for testing selectors and end-to-end
// convergence without a real judge.
type Simulated struct {
	groundTruth map[string]float64
	noise       float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated builds a simulated judge. noise is clamped to [0, 1] and
// scales with the magnitude of each score. rng may be nil.
func NewSimulated(groundTruth map[string]float64, noise float64, rng *rand.Rand) *Simulated {
	if noise < 0 {
		noise = 0
	}
	if noise > 1 {
		noise = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulated{groundTruth: groundTruth, noise: noise, rng: rng}
}

func (j *Simulated) Evaluate(ctx context.Context, crashes []crash.Crash) (crash.OrdinalResult, error) {
	if len(crashes) == 0 {
		return crash.OrdinalResult{}, fmt.Errorf("simulated judge: empty matchup")
	}

	type scored struct {
		c     crash.Crash
		noisy float64
		truth float64
	}
	items := make([]scored, len(crashes))
	j.mu.Lock()
	for i, c := range crashes {
		truth := j.groundTruth[c.ID]
		noisy := truth
		if j.noise > 0 {
			noisy += j.rng.NormFloat64() * math.Abs(truth) * j.noise
		}
		items[i] = scored{c: c, noisy: noisy, truth: truth}
	}
	j.mu.Unlock()

	sort.SliceStable(items, func(a, b int) bool { return items[a].noisy > items[b].noisy })

	ordered := make([]string, len(items))
	raw := "simulated judge evaluation:\n"
	for i, it := range items {
		ordered[i] = it.c.ID
		raw += fmt.Sprintf("%d. %s: %.3f (true: %.3f)\n", i+1, it.c.ID, it.noisy, it.truth)
	}
	rationale := fmt.Sprintf("%s scored %.3f (ground truth %.3f)", items[0].c.ID, items[0].noisy, items[0].truth)

	return newResult("simulated", ordered, raw, map[string]any{"rationale": rationale}), nil
}

// LoadGroundTruth reads a yaml map of crash_id -> exploitability score for
// the simulated judge.
func LoadGroundTruth(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ground truth file: %w", err)
	}
	var scores map[string]float64
	if err := yaml.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("parsing ground truth file: %w", err)
	}
	return scores, nil
}
