package cmd

import (
	"fmt"

	"github.com/signalnine/crashrank/internal/config"
	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/storage"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [state-dir]",
		Short: "Rebuild the snapshot from the observation log",
		Long:  "Re-apply every stored observation to a fresh rating engine and rewrite the snapshot. Useful after changing rating parameters or recovering from a corrupt snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir := ""
			if len(args) > 0 {
				stateDir = args[0]
			} else {
				cfg, err := config.Load(cfgFile)
				if err != nil {
					return err
				}
				stateDir = cfg.Output.Dir
			}

			store, err := storage.NewJSONL(stateDir)
			if err != nil {
				return err
			}
			obs, err := store.LoadObservations()
			if err != nil {
				return fmt.Errorf("loading observations: %w", err)
			}
			if len(obs) == 0 {
				return fmt.Errorf("no observations found in %s", stateDir)
			}

			engine := rating.NewEngine(rating.DefaultParams())
			for _, res := range obs {
				weight := 1.0
				if n := len(res.OrderedIDs); n > 1 {
					weight = 1.0 / float64(n-1)
				}
				engine.Update(res, weight)
			}

			// Failure counters cannot be reconstructed from successful
			// observations; carry them over when a snapshot survives.
			runtime := storage.RuntimeState{
				EvaluatedMatchups: len(obs),
				TotalEvaluations:  len(obs),
			}
			if old, err := store.LoadSnapshot(); err == nil && old != nil {
				runtime.TotalEvaluations = old.Runtime.TotalEvaluations
				runtime.FailedEvaluations = old.Runtime.FailedEvaluations
				runtime.LastMilestone = old.Runtime.LastMilestone
			}

			if err := store.SaveSnapshot(storage.SystemState{
				Ranker:  engine.Snapshot(),
				Runtime: runtime,
			}); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}
			fmt.Printf("Replayed %d observations into a fresh snapshot in %s\n", len(obs), stateDir)
			return nil
		},
	}
}
