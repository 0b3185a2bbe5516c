package strategy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sentinel-core/internal/store"
)

// LoadConfig reads a strategy set from a YAML file.
func LoadConfig(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, err
	}

	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Set{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validateSet(set); err != nil {
		return Set{}, fmt.Errorf("invalid strategy config %s: %w", path, err)
	}
	return set, nil
}

func validateSet(set Set) error {
	seen := make(map[int]bool, len(set.Strategies))
	for _, d := range set.Strategies {
		if d.ID <= 0 {
			return fmt.Errorf("strategy %q has no positive id", d.Name)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate strategy id %d", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// SyncConfig writes the set to the store so every reader sees the same copy.
func SyncConfig(ctx context.Context, st store.Store, set Set) error {
	if err := st.Write(ctx, store.KeyStrategies, set); err != nil {
		return fmt.Errorf("sync strategies: %w", err)
	}
	return nil
}

// LoadFromStore reads the persisted set. found is false when nothing was synced yet.
func LoadFromStore(ctx context.Context, st store.Store) (Set, bool, error) {
	var set Set
	found, err := st.Read(ctx, store.KeyStrategies, &set)
	if err != nil || !found {
		return Set{}, found, err
	}
	return set, true, nil
}

// DefaultSet is the builtin configuration used when no file is present.
func DefaultSet() Set {
	return Set{
		DefaultStrategy: 1,
		Strategies: []Definition{
			{
				ID:          1,
				Name:        "RSI + SMA Crossover",
				Description: "Mean reversion on RSI extremes with SMA crossover confirmation",
				Type:        TypeRSISMA,
				Enabled:     true,
				Parameters: Params{
					"rsi_period":         14,
					"rsi_oversold":       30,
					"rsi_overbought":     70,
					"sma_fast":           5,
					"sma_slow":           10,
					"momentum_threshold": 0.5,
				},
			},
			{
				ID:          2,
				Name:        "Volatility Breakout",
				Description: "Bollinger band touches",
				Type:        TypeBollinger,
				Enabled:     true,
				Parameters: Params{
					"period":             20,
					"std_dev_multiplier": 2.0,
					"breakout_threshold": 0.8,
				},
			},
			{
				ID:          3,
				Name:        "Momentum Trend Following",
				Description: "MACD-style EMA spread",
				Type:        TypeMACD,
				Enabled:     true,
				Parameters: Params{
					"fast_ema":            12,
					"slow_ema":            26,
					"signal_line":         9,
					"histogram_threshold": 0.5,
				},
			},
		},
	}
}
