// Package scheduler drives trading cycles on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinel-core/internal/engine"
)

// Runner is the part of the orchestrator the scheduler needs.
type Runner interface {
	AssetIDs() []string
	RunCycle(ctx context.Context, assetID string) engine.CycleResult
}

// Config controls tick cadence and asset selection.
type Config struct {
	Interval time.Duration
	// Rotate runs one asset per tick round-robin; otherwise every asset runs
	// sequentially on each tick.
	Rotate bool
	// CycleTimeout bounds a cycle once shutdown has been requested.
	CycleTimeout time.Duration
}

// Scheduler ticks the runner. Ticks never overlap.
type Scheduler struct {
	runner Runner
	cfg    Config

	mu   sync.Mutex
	next int

	logger zerolog.Logger
}

// New creates a scheduler.
func New(r Runner, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * time.Minute
	}
	return &Scheduler{
		runner: r,
		cfg:    cfg,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// Tick runs the cycles for one tick. Cycles run on a context detached from
// ctx cancellation so a submitted trade can finish recording; CycleTimeout
// still bounds them.
func (s *Scheduler) Tick(ctx context.Context) []engine.CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.runner.AssetIDs()
	if len(ids) == 0 {
		return nil
	}
	if s.cfg.Rotate {
		id := ids[s.next%len(ids)]
		s.next = (s.next + 1) % len(ids)
		ids = []string{id}
	}

	out := make([]engine.CycleResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
		res := s.runner.RunCycle(cctx, id)
		cancel()
		s.logger.Debug().Str("asset", id).Str("outcome", res.Outcome).Str("reason", res.Reason).Msg("cycle done")
		out = append(out, res)
	}
	return out
}

// Run ticks immediately and then on every interval until ctx is done. The
// in-flight tick completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Bool("rotate", s.cfg.Rotate).Msg("scheduler started")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
