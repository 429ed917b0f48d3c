package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalnine/crashrank/internal/config"
	"github.com/signalnine/crashrank/internal/fetcher"
	"github.com/signalnine/crashrank/internal/judge"
	"github.com/signalnine/crashrank/internal/orchestrator"
	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/report"
	"github.com/signalnine/crashrank/internal/selector"
	"github.com/signalnine/crashrank/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagBudget  int
	flagWorkers int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a ranking tournament over the crash corpus",
		RunE:  runTournament,
	}
	cmd.Flags().IntVar(&flagBudget, "budget", 0, "override evaluation budget")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "override concurrent judge workers")
	return cmd
}

func runTournament(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagBudget > 0 {
		cfg.Tournament.Budget = flagBudget
	}
	if flagWorkers > 0 {
		cfg.Tournament.Workers = flagWorkers
	}

	corpus, err := fetcher.NewDirectory(cfg.Corpus.Dir, cfg.Corpus.Pattern)
	if err != nil {
		return err
	}
	fmt.Printf("Corpus: %d crashes from %s\n", corpus.Count(), cfg.Corpus.Dir)

	store, err := storage.NewJSONL(cfg.Output.Dir)
	if err != nil {
		return err
	}

	engine := rating.NewEngine(rating.DefaultParams())
	sel, err := buildSelector(cfg, engine)
	if err != nil {
		return err
	}
	j, err := buildJudge(cfg)
	if err != nil {
		return err
	}

	budget := cfg.Tournament.ResolveBudget(corpus.Count())
	orch, err := orchestrator.New(engine, sel, j, corpus, store, orchestrator.Options{
		MatchupSize:     cfg.Tournament.MatchupSize,
		Budget:          budget,
		Workers:         cfg.Tournament.Workers,
		SnapshotCadence: cfg.Tournament.SnapshotCadence,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Evaluated %d matchups (%d failures, budget %d)\n", sum.Evaluated, sum.Failed, budget)

	rows := make([]report.Row, len(sum.Ranking))
	for i, r := range sum.Ranking {
		rows[i] = report.Row{
			Rank:        i + 1,
			CrashID:     r.ID,
			Score:       r.Score,
			Uncertainty: r.Uncertainty,
			Evals:       r.Evals,
			WinPct:      r.WinPct,
			AvgRank:     r.AvgRank,
		}
	}
	rankedDir := filepath.Join(cfg.Output.Dir, "ranked")
	pathFor := func(id string) (string, error) {
		c, err := corpus.Get(id)
		if err != nil {
			return "", err
		}
		return c.FilePath, nil
	}
	if err := report.WriteRankedDir(rankedDir, rows, pathFor); err != nil {
		return fmt.Errorf("writing ranked dir: %w", err)
	}
	fmt.Printf("Ranked symlinks written to %s\n\n", rankedDir)

	return report.Generate(cfg.Output.Dir, "table", os.Stdout)
}

func buildSelector(cfg *config.Config, engine *rating.Engine) (orchestrator.Selector, error) {
	switch cfg.Selector.Strategy {
	case "random":
		return selector.NewRandom(engine, nil), nil
	case "least_runs":
		return selector.NewLeastRuns(engine, nil), nil
	case "uncertainty":
		return selector.NewUncertainty(engine, selector.UncertaintyOptions{
			Temperature:      cfg.Selector.Temperature,
			DeltaMu:          cfg.Selector.DeltaMu,
			PoolSize:         cfg.Selector.PoolSize,
			MaxEvalsPerCrash: cfg.Selector.MaxEvalsPerCrash,
		}), nil
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", cfg.Selector.Strategy)
	}
}

func buildJudge(cfg *config.Config) (orchestrator.Judge, error) {
	timeout := time.Duration(cfg.Judge.TimeoutSeconds) * time.Second
	switch cfg.Judge.Type {
	case "dummy":
		return judge.NewDummy(false, 0), nil
	case "dummy_random":
		return judge.NewDummy(true, time.Now().UnixNano()), nil
	case "simulated":
		truth, err := judge.LoadGroundTruth(cfg.Judge.GroundTruth)
		if err != nil {
			return nil, err
		}
		return judge.NewSimulated(truth, cfg.Judge.Noise, rand.New(rand.NewSource(time.Now().UnixNano()))), nil
	case "command":
		return judge.NewCommand(cfg.Judge.Command, timeout)
	case "container":
		return judge.NewContainer(cfg.Judge.Image, cfg.Judge.Command, timeout)
	default:
		return nil, fmt.Errorf("unknown judge type %q", cfg.Judge.Type)
	}
}
