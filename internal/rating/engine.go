package rating

import "github.com/signalnine/crashrank/internal/crash"

// Engine maintains per-crash skill estimates and derived statistics, updated
// from ordinal observations. Not safe for concurrent mutation: the
// orchestrator applies all updates from its control goroutine.
type Engine struct {
	params  Params
	ratings map[string]Rating
	stats   Statistics
}

// Statistics are the derived per-crash counters kept alongside ratings.
type Statistics struct {
	EvalCounts map[string]int   `json:"eval_counts"`
	WinCounts  map[string]int   `json:"win_counts"`
	Rankings   map[string][]int `json:"rankings"`
	GroupSizes map[string][]int `json:"group_sizes"`
}

func newStatistics() Statistics {
	return Statistics{
		EvalCounts: map[string]int{},
		WinCounts:  map[string]int{},
		Rankings:   map[string][]int{},
		GroupSizes: map[string][]int{},
	}
}

func NewEngine(params Params) *Engine {
	return &Engine{
		params:  params,
		ratings: map[string]Rating{},
		stats:   newStatistics(),
	}
}

func (e *Engine) rating(id string) Rating {
	if r, ok := e.ratings[id]; ok {
		return r
	}
	return e.params.defaultRating()
}

// Update applies a k-way ordinal result as k-1 adjacent pairwise contests
// (rank 1 beats rank 2, rank 2 beats rank 3, ...). weight scales the dynamic
// factor for this observation only, compensating for the k-way expansion;
// callers pass 1/(k-1). Statistics are recorded for every participant even
// when the result is too small to produce a pairwise update.
func (e *Engine) Update(res crash.OrdinalResult, weight float64) {
	ordered := res.OrderedIDs
	groupSize := len(ordered)

	for rank, id := range ordered {
		e.stats.EvalCounts[id]++
		// Beating is "ranked strictly above" within this matchup.
		e.stats.WinCounts[id] += groupSize - rank - 1
		e.stats.Rankings[id] = append(e.stats.Rankings[id], rank+1)
		e.stats.GroupSizes[id] = append(e.stats.GroupSizes[id], groupSize)
	}

	if groupSize < 2 {
		return
	}

	adjusted := e.params
	if weight > 0 {
		adjusted.Tau = e.params.Tau * weight
	}

	for i := 0; i < groupSize-1; i++ {
		winnerID, loserID := ordered[i], ordered[i+1]
		winner, loser := rate1vs1(e.rating(winnerID), e.rating(loserID), adjusted)
		e.ratings[winnerID] = winner
		e.ratings[loserID] = loser
	}
}

// Score returns the current mean skill estimate, or the default for an
// unseen crash. Pure read: never materializes state.
func (e *Engine) Score(id string) float64 {
	return e.rating(id).Mu
}

// Uncertainty returns the current sigma, or the default for an unseen crash.
func (e *Engine) Uncertainty(id string) float64 {
	return e.rating(id).Sigma
}

// EvalCount returns how many matchups the crash has appeared in.
func (e *Engine) EvalCount(id string) int {
	return e.stats.EvalCounts[id]
}

// WinPercentage returns wins over total possible wins across all matchups the
// crash appeared in, as a fraction in [0, 1]. Zero for unseen crashes.
func (e *Engine) WinPercentage(id string) float64 {
	possible := 0
	for _, size := range e.stats.GroupSizes[id] {
		possible += size - 1
	}
	if possible == 0 {
		return 0
	}
	return float64(e.stats.WinCounts[id]) / float64(possible)
}

// AverageRank returns the mean 1-based finishing position, or 0 if unseen.
func (e *Engine) AverageRank(id string) float64 {
	ranks := e.stats.Rankings[id]
	if len(ranks) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ranks {
		sum += r
	}
	return float64(sum) / float64(len(ranks))
}

// Snapshot exports a deep copy of ratings and statistics. Later engine
// mutation does not alter a returned snapshot.
func (e *Engine) Snapshot() State {
	s := State{
		Ratings:    make(map[string]Rating, len(e.ratings)),
		Statistics: newStatistics(),
	}
	for id, r := range e.ratings {
		s.Ratings[id] = r
	}
	for id, n := range e.stats.EvalCounts {
		s.Statistics.EvalCounts[id] = n
	}
	for id, n := range e.stats.WinCounts {
		s.Statistics.WinCounts[id] = n
	}
	for id, ranks := range e.stats.Rankings {
		s.Statistics.Rankings[id] = append([]int(nil), ranks...)
	}
	for id, sizes := range e.stats.GroupSizes {
		s.Statistics.GroupSizes[id] = append([]int(nil), sizes...)
	}
	return s
}

// LoadSnapshot replaces all in-memory state with a deep copy of the given
// state. Missing maps are treated as empty.
func (e *Engine) LoadSnapshot(s State) {
	e.ratings = make(map[string]Rating, len(s.Ratings))
	e.stats = newStatistics()
	for id, r := range s.Ratings {
		e.ratings[id] = r
	}
	for id, n := range s.Statistics.EvalCounts {
		e.stats.EvalCounts[id] = n
	}
	for id, n := range s.Statistics.WinCounts {
		e.stats.WinCounts[id] = n
	}
	for id, ranks := range s.Statistics.Rankings {
		e.stats.Rankings[id] = append([]int(nil), ranks...)
	}
	for id, sizes := range s.Statistics.GroupSizes {
		e.stats.GroupSizes[id] = append([]int(nil), sizes...)
	}
}
