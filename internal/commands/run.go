package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sentinel-core/internal/api"
	"sentinel-core/internal/engine"
	"sentinel-core/internal/events"
	"sentinel-core/internal/market"
	"sentinel-core/internal/monitor"
	"sentinel-core/internal/scheduler"
	"sentinel-core/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

var (
	runNoAPI bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop and the status API",
		RunE:  runService,
	}
)

func init() {
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "run the trading loop without the HTTP API")
}

func runService(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()
	metrics := monitor.NewSystemMetrics()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	set := loadStrategies(ctx, cfg, st)
	strategies := strategy.NewEngine(set)
	log.Info().Int("count", len(set.Strategies)).Int("default", set.DefaultStrategy).Msg("strategies loaded")

	book, err := loadAssets(ctx, cfg, st)
	if err != nil {
		return err
	}

	gate := newGate(ctx, cfg, st, bus)
	status := gate.Status()
	if status.KillSwitchActive {
		log.Warn().Str("reason", status.KillSwitchReason).Msg("kill switch is active from a previous run")
	}

	ledgerClient, remediator, err := newLedger(cfg, book)
	if err != nil {
		return err
	}

	signals, closer, err := newSignalSource(ctx, cfg, strategies)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	orch, err := engine.New(ctx, orchestratorConfig(cfg, set, book), engine.Deps{
		Prices:     market.NewRandomWalk(cfg.PriceStart, cfg.PriceStep, time.Now().UnixNano()),
		Strategies: strategies,
		Signals:    signals,
		Gate:       gate,
		Ledger:     ledgerClient,
		Remediator: remediator,
		Store:      st,
		Bus:        bus,
		Metrics:    metrics,
		Book:       book,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	orch.SyncBalance(ctx)

	(&monitor.Monitor{Bus: bus, Sink: monitor.LogSink{}}).Start(ctx)

	sched := scheduler.New(orch, scheduler.Config{
		Interval:     cfg.PollingInterval,
		Rotate:       cfg.RotateAssets,
		CycleTimeout: cfg.ConfirmTimeout,
	})

	log.Info().
		Strs("assets", orch.AssetIDs()).
		Bool("autoTrading", cfg.EnableAutoTrading).
		Bool("rotate", cfg.RotateAssets).
		Dur("interval", cfg.PollingInterval).
		Str("ledger", cfg.LedgerMode).
		Str("signals", cfg.SignalSource).
		Msg("trading loop starting")
	if !cfg.EnableAutoTrading {
		log.Warn().Msg("auto-trading disabled; signals are logged but not executed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })

	if !runNoAPI {
		srv := api.NewServer(bus, orch, metrics, cfg.JWTSecret).HTTPServer(":" + cfg.Port)
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("api server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info().Msg("shutting down")
	snap := metrics.GetSnapshot()
	log.Info().
		Uint64("cycles", snap.TotalCycles).
		Uint64("trades", snap.SuccessfulTrades).
		Uint64("failed", snap.FailedTrades).
		Msg("final metrics")
	return err
}
