package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel-core/internal/engine"
	"sentinel-core/internal/performance"
	"sentinel-core/internal/risk"
)

var (
	statusTrades int

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print persisted risk state, recent trades and performance",
		RunE:  runStatus,
	}
)

func init() {
	statusCmd.Flags().IntVar(&statusTrades, "trades", 10, "number of recent trades to include")
}

type statusReport struct {
	Risk        risk.Status          `json:"risk"`
	Performance performance.Summary  `json:"performance"`
	Trades      []engine.TradeRecord `json:"recentTrades"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	trades, err := engine.NewTradeLog(ctx, st, engine.DefaultRecentTrades)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	results := trades.Results()
	pnls := make([]float64, len(results))
	for i, r := range results {
		pnls[i] = r.PnL
	}

	return printJSON(cmd.OutOrStdout(), statusReport{
		Risk:        newGate(ctx, cfg, st, nil).Status(),
		Performance: performance.Summarize(pnls),
		Trades:      trades.Recent(statusTrades),
	})
}
