package judge

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/signalnine/crashrank/internal/crash"
)

// Dummy produces a deterministic (id-sorted) or seeded-random order. For
// wiring tests and for exercising the orchestrator without any real signal.
type Dummy struct {
	random bool
	id     string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDummy(random bool, seed int64) *Dummy {
	id := "dummy_deterministic"
	if random {
		id = "dummy_random"
	}
	return &Dummy{random: random, id: id, rng: rand.New(rand.NewSource(seed))}
}

func (j *Dummy) Evaluate(ctx context.Context, crashes []crash.Crash) (crash.OrdinalResult, error) {
	if len(crashes) == 0 {
		return crash.OrdinalResult{}, fmt.Errorf("dummy judge: empty matchup")
	}

	ordered := matchupIDs(crashes)
	if j.random {
		j.mu.Lock()
		j.rng.Shuffle(len(ordered), func(a, b int) { ordered[a], ordered[b] = ordered[b], ordered[a] })
		j.mu.Unlock()
	} else {
		sort.Strings(ordered)
	}

	raw := fmt.Sprintf("dummy ranking of %d crashes", len(crashes))
	return newResult(j.id, ordered, raw, nil), nil
}
