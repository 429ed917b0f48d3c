package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crashrank",
		Short: "Rank crash artifacts by exploitability via adaptive tournaments",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "crashrank.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newReplayCmd())
	return root
}
