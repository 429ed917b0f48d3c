package cmd

import (
	"os"

	"github.com/signalnine/crashrank/internal/config"
	"github.com/signalnine/crashrank/internal/report"
	"github.com/spf13/cobra"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [state-dir]",
		Short: "Show the current ranking from a stored snapshot",
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
			return report.Generate(stateDir, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
