// Package orchestrator drives a ranking run: it asks the selector for
// matchups, farms them out to judge workers, and applies completed results
// to the rating engine. All engine and counter mutation happens on the
// goroutine that called Run; workers only evaluate and report back.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/signalnine/crashrank/internal/crash"
	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/storage"
)

const (
	// A run where the first few evaluations all fail is misconfigured, not
	// unlucky. Same for a sustained failure rate once the sample is big
	// enough to trust.
	earlyAbortThreshold = 4
	lateAbortThreshold  = 50
	failureRateLimit    = 0.20
)

type Fetcher interface {
	List() []crash.Crash
	Get(id string) (crash.Crash, error)
}

type Judge interface {
	Evaluate(ctx context.Context, crashes []crash.Crash) (crash.OrdinalResult, error)
}

type Selector interface {
	SelectMatchup(candidates []string, size int) []string
}

type Storage interface {
	AppendObservation(res crash.OrdinalResult) error
	SaveSnapshot(state storage.SystemState) error
	LoadSnapshot() (*storage.SystemState, error)
}

type Options struct {
	MatchupSize     int
	Budget          int
	Workers         int
	SnapshotCadence int
}

func (o *Options) validate() error {
	if o.MatchupSize < 2 || o.MatchupSize > 7 {
		return fmt.Errorf("matchup size must be between 2 and 7, got %d", o.MatchupSize)
	}
	if o.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %d", o.Budget)
	}
	if o.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	}
	if o.SnapshotCadence <= 0 {
		return fmt.Errorf("snapshot cadence must be positive, got %d", o.SnapshotCadence)
	}
	return nil
}

type RankedCrash struct {
	ID          string
	Score       float64
	Uncertainty float64
	Evals       int
	WinPct      float64
	AvgRank     float64
}

type Summary struct {
	Evaluated       int
	Failed          int
	Total           int
	AlreadyComplete bool
	Ranking         []RankedCrash
}

type Orchestrator struct {
	engine   *rating.Engine
	selector Selector
	judge    Judge
	fetcher  Fetcher
	storage  Storage
	opts     Options
	runtime  storage.RuntimeState
}

func New(engine *rating.Engine, sel Selector, j Judge, f Fetcher, st Storage, opts Options) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		engine:   engine,
		selector: sel,
		judge:    j,
		fetcher:  f,
		storage:  st,
		opts:     opts,
	}, nil
}

type outcome struct {
	ids []string
	res crash.OrdinalResult
	err error
}

// Run evaluates matchups until the budget is spent, resuming from a prior
// snapshot if one exists. Budget counts successful matchups only; failures
// count toward the abort thresholds but not the budget.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if snap, err := o.storage.LoadSnapshot(); err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	} else if snap != nil {
		o.engine.LoadSnapshot(snap.Ranker)
		o.runtime = snap.Runtime
		log.Printf("resuming from snapshot: %d/%d matchups already evaluated", o.runtime.EvaluatedMatchups, o.opts.Budget)
	}

	if o.runtime.EvaluatedMatchups >= o.opts.Budget {
		log.Printf("run already complete: %d matchups evaluated, budget %d", o.runtime.EvaluatedMatchups, o.opts.Budget)
		return o.summary(true), nil
	}

	crashes := o.fetcher.List()
	if len(crashes) < 2 {
		return nil, fmt.Errorf("corpus has %d crashes, need at least 2 for a matchup", len(crashes))
	}
	if len(crashes) < o.opts.MatchupSize {
		log.Printf("warning: corpus has %d crashes, matchups shrink below the configured size %d", len(crashes), o.opts.MatchupSize)
	}
	ids := make([]string, len(crashes))
	for i, c := range crashes {
		ids[i] = c.ID
	}

	// Buffered so workers can always deliver and never leak on early return.
	results := make(chan outcome, o.opts.Workers)
	inFlight := make(map[string]struct{})
	outstanding := 0

	for {
		for outstanding < o.opts.Workers && o.runtime.EvaluatedMatchups+outstanding < o.opts.Budget {
			matchup := o.selector.SelectMatchup(o.freeIDs(ids, inFlight), o.opts.MatchupSize)
			if matchup == nil {
				break
			}
			group := make([]crash.Crash, len(matchup))
			for i, id := range matchup {
				c, err := o.fetcher.Get(id)
				if err != nil {
					return nil, fmt.Errorf("resolving matchup: %w", err)
				}
				group[i] = c
			}
			for _, id := range matchup {
				inFlight[id] = struct{}{}
			}
			outstanding++
			go func(matchup []string, group []crash.Crash) {
				res, err := o.judge.Evaluate(ctx, group)
				results <- outcome{ids: matchup, res: res, err: err}
			}(matchup, group)
		}
		if outstanding == 0 {
			if o.runtime.EvaluatedMatchups < o.opts.Budget {
				log.Printf("warning: no feasible matchup remains, stopping at %d/%d", o.runtime.EvaluatedMatchups, o.opts.Budget)
			}
			break
		}

		select {
		case <-ctx.Done():
			o.persistSnapshot()
			return nil, ctx.Err()
		case out := <-results:
			outstanding--
			for _, id := range out.ids {
				delete(inFlight, id)
			}
			o.runtime.TotalEvaluations++

			if out.err != nil {
				o.runtime.FailedEvaluations++
				log.Printf("warning: evaluation of %v failed: %v", out.ids, out.err)
				if err := o.abortGate(); err != nil {
					o.persistSnapshot()
					return nil, err
				}
				continue
			}

			weight := 1.0
			if n := len(out.res.OrderedIDs); n > 1 {
				weight = 1.0 / float64(n-1)
			}
			o.engine.Update(out.res, weight)
			o.runtime.EvaluatedMatchups++
			if err := o.storage.AppendObservation(out.res); err != nil {
				log.Printf("warning: persisting observation %s: %v", out.res.EvalID, err)
			}
			o.persistSnapshot()

			if o.runtime.EvaluatedMatchups-o.runtime.LastMilestone >= o.opts.SnapshotCadence {
				o.runtime.LastMilestone = o.runtime.EvaluatedMatchups
				log.Printf("progress: %d/%d matchups evaluated, %d failures", o.runtime.EvaluatedMatchups, o.opts.Budget, o.runtime.FailedEvaluations)
			}
		}
	}

	o.persistSnapshot()
	return o.summary(false), nil
}

func (o *Orchestrator) freeIDs(ids []string, inFlight map[string]struct{}) []string {
	free := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, busy := inFlight[id]; !busy {
			free = append(free, id)
		}
	}
	return free
}

func (o *Orchestrator) abortGate() error {
	rt := o.runtime
	if rt.FailedEvaluations >= earlyAbortThreshold && rt.FailedEvaluations == rt.TotalEvaluations {
		return fmt.Errorf("aborting: first %d evaluations all failed, judge looks misconfigured", rt.FailedEvaluations)
	}
	if rt.TotalEvaluations >= lateAbortThreshold {
		rate := float64(rt.FailedEvaluations) / float64(rt.TotalEvaluations)
		if rate > failureRateLimit {
			return fmt.Errorf("aborting: failure rate %.0f%% over %d evaluations exceeds %.0f%%", rate*100, rt.TotalEvaluations, failureRateLimit*100)
		}
	}
	return nil
}

func (o *Orchestrator) persistSnapshot() {
	state := storage.SystemState{
		Ranker:  o.engine.Snapshot(),
		Runtime: o.runtime,
	}
	if err := o.storage.SaveSnapshot(state); err != nil {
		log.Printf("warning: saving snapshot: %v", err)
	}
}

func (o *Orchestrator) summary(alreadyComplete bool) *Summary {
	return &Summary{
		Evaluated:       o.runtime.EvaluatedMatchups,
		Failed:          o.runtime.FailedEvaluations,
		Total:           o.runtime.TotalEvaluations,
		AlreadyComplete: alreadyComplete,
		Ranking:         o.Ranking(),
	}
}

// Ranking returns every corpus crash ordered by score, best first. Ties
// break on id for stable output.
func (o *Orchestrator) Ranking() []RankedCrash {
	crashes := o.fetcher.List()
	ranked := make([]RankedCrash, len(crashes))
	for i, c := range crashes {
		ranked[i] = RankedCrash{
			ID:          c.ID,
			Score:       o.engine.Score(c.ID),
			Uncertainty: o.engine.Uncertainty(c.ID),
			Evals:       o.engine.EvalCount(c.ID),
			WinPct:      o.engine.WinPercentage(c.ID),
			AvgRank:     o.engine.AverageRank(c.ID),
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].ID < ranked[b].ID
	})
	return ranked
}
