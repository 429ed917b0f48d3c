package cmd

import (
	"fmt"

	"github.com/signalnine/crashrank/internal/config"
	"github.com/signalnine/crashrank/internal/fetcher"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the crash corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			corpus, err := fetcher.NewDirectory(cfg.Corpus.Dir, cfg.Corpus.Pattern)
			if err != nil {
				return err
			}
			fmt.Printf("Corpus: %s (%d crashes)\n", cfg.Corpus.Dir, corpus.Count())
			for _, c := range corpus.List() {
				fmt.Printf("  - %s (%s)\n", c.ID, c.FilePath)
			}
			return nil
		},
	}
}
