// Package commands holds the sentinel CLI: the trading service plus the
// operator and research tooling around it.
package commands

import (
	"github.com/spf13/cobra"

	"sentinel-core/pkg/config"
	"sentinel-core/pkg/logging"
)

var (
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "Autonomous indicator-driven trading loop",
		Long: `sentinel polls prices for a set of assets, evaluates technical
strategies against the collected history and executes swaps through a
ledger once the risk gate allows it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killSwitchCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(signalWorkerCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
