package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"sentinel-core/internal/engine"
	"sentinel-core/internal/events"
	"sentinel-core/internal/ledger"
	"sentinel-core/internal/risk"
	"sentinel-core/internal/store"
	"sentinel-core/internal/strategy"
	"sentinel-core/pkg/config"
	"sentinel-core/pkg/db"
)

// openStore selects the persistence backend named by STORE_BACKEND.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.StoreBackend {
	case "memory":
		log.Warn().Msg("using in-memory store; state is lost on exit")
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.RedisPrefix)
	default:
		database, err := db.New(c.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info().Str("path", c.DBPath).Msg("sqlite store ready")
		return store.NewSQLite(database), nil
	}
}

// loadStrategies syncs the YAML strategy file into the store and reads it
// back so the store stays the source of truth for the running engine.
func loadStrategies(ctx context.Context, c *config.Config, st store.Store) strategy.Set {
	set, err := strategy.LoadConfig(c.StrategiesPath)
	if err != nil {
		log.Warn().Err(err).Str("path", c.StrategiesPath).Msg("strategy config load failed")
	} else if err := strategy.SyncConfig(ctx, st, set); err != nil {
		log.Warn().Err(err).Msg("strategy sync failed")
	}

	stored, ok, err := strategy.LoadFromStore(ctx, st)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("strategy load from store failed")
	case ok:
		set = stored
	}
	if len(set.Strategies) == 0 {
		log.Warn().Msg("no strategies configured, using built-in defaults")
		set = strategy.DefaultSet()
	}
	if set.DefaultStrategy == 0 {
		set.DefaultStrategy = c.DefaultStrategyID
	}
	return set
}

func loadAssets(ctx context.Context, c *config.Config, st store.Store) (engine.AssetBook, error) {
	book, err := engine.LoadAssets(c.AssetsPath)
	if err == nil {
		if err := engine.SyncAssets(ctx, st, book); err != nil {
			log.Warn().Err(err).Msg("asset sync failed")
		}
		return book, nil
	}
	stored, ok, serr := engine.LoadAssetsFromStore(ctx, st)
	if serr != nil || !ok {
		return engine.AssetBook{}, fmt.Errorf("load assets: %w", err)
	}
	log.Warn().Err(err).Msg("asset file unreadable, using stored asset config")
	return stored, nil
}

func riskConfig(c *config.Config) risk.Config {
	return risk.Config{
		EnableKillSwitch:            c.RiskEnableKillSwitch,
		MaxConsecutiveFailures:      c.RiskMaxConsecutiveFailures,
		MaxDailyLossPercent:         c.RiskMaxDailyLossPercent,
		EnableLossStreakProtection:  c.RiskEnableLossStreak,
		MaxLossStreak:               c.RiskMaxLossStreak,
		EnableOvertradingProtection: c.RiskEnableOvertrading,
		MinTimeBetweenTradesSeconds: c.RiskMinSecondsBetweenTrades,
		MaxSlippageBps:              c.RiskMaxSlippageBps,
	}
}

// newGate builds the store-backed risk gate. When bus is set, activations
// are broadcast as kill switch events.
func newGate(ctx context.Context, c *config.Config, st store.Store, bus *events.Bus) *risk.Gate {
	var opts []risk.Option
	if bus != nil {
		opts = append(opts, risk.WithKillSwitchHook(func(reason string) {
			bus.Publish(events.EventKillSwitch, events.RiskAlert{Kind: "kill_switch", Message: reason})
		}))
	}
	return risk.NewGate(ctx, st, riskConfig(c), opts...)
}

// orchestratorConfig maps settings onto the orchestrator. Balance tracking
// stays off unless BALANCE_TOKEN names a valuation token; the spend token of
// an asset drops on every swap, which the gate would book as daily loss.
func orchestratorConfig(c *config.Config, set strategy.Set, book engine.AssetBook) engine.Config {
	if c.BalanceToken != "" {
		for _, a := range book.Enabled() {
			if a.TokenIn == c.BalanceToken {
				log.Warn().Str("token", c.BalanceToken).Str("asset", a.ID).
					Msg("BALANCE_TOKEN is spent by an asset; each swap will count as daily loss")
				break
			}
		}
	}
	return engine.Config{
		TraderID:           c.TraderID,
		Owner:              c.WalletAddress,
		AutoTrading:        c.EnableAutoTrading,
		DuplicateThreshold: c.DuplicatePriceThreshold,
		HistoryCap:         c.PriceHistoryCap,
		SignalTimeout:      c.SignalTimeout,
		ConfirmTimeout:     c.ConfirmTimeout,
		DefaultStrategyID:  set.DefaultStrategy,
		BalanceToken:       c.BalanceToken,
	}
}

// newLedger returns the ledger client and its funding remediator.
func newLedger(c *config.Config, book engine.AssetBook) (ledger.Client, ledger.FundingRemediator, error) {
	if c.LedgerMode == "gateway" {
		gw := ledger.NewGateway(c.LedgerGatewayURL, c.LedgerRPS)
		log.Info().Str("url", c.LedgerGatewayURL).Msg("ledger gateway enabled")
		return gw, gw.Remediator(c.WalletAddress, c.ConfirmTimeout), nil
	}

	sim := ledger.NewSimulated(ledger.SimConfig{
		FillSlippageBps: c.SimFillSlippage,
		ConfirmLatency:  200 * time.Millisecond,
		AutoApprove:     true,
	})
	seeded := map[string]bool{}
	for _, a := range book.Enabled() {
		if seeded[a.TokenIn] {
			continue
		}
		tok := book.Tokens[a.TokenIn]
		amount, err := ledger.ToBaseUnits(decimal.NewFromFloat(c.SimInitialBalance).String(), tok.Decimals)
		if err != nil {
			return nil, nil, fmt.Errorf("seed %s: %w", a.TokenIn, err)
		}
		sim.SetBalance(c.WalletAddress, tok.Address, amount)
		seeded[a.TokenIn] = true
		log.Info().Str("token", a.TokenIn).Float64("amount", c.SimInitialBalance).Msg("simulated vault funded")
	}
	return sim, sim.Remediator(c.WalletAddress), nil
}

// newSignalSource picks the strategy evaluator. The returned closer is
// non-nil for out-of-process sources.
func newSignalSource(ctx context.Context, c *config.Config, local *strategy.Engine) (strategy.Source, io.Closer, error) {
	switch c.SignalSource {
	case "grpc":
		client, err := strategy.NewWorkerClient(c.SignalWorkerAddr, c.SignalTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("signal worker: %w", err)
		}
		log.Info().Str("addr", c.SignalWorkerAddr).Msg("remote signal worker enabled")
		return client, client, nil
	case "process":
		proc, err := strategy.StartProcess(ctx, c.SignalArgv(), c.SignalTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("signal process: %w", err)
		}
		log.Info().Str("cmd", c.SignalProcessCmd).Msg("signal process started")
		return proc, proc, nil
	default:
		return local, nil, nil
	}
}
