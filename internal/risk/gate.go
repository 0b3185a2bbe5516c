package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinel-core/internal/store"
)

const dateLayout = "2006-01-02"

// Gate is the risk state machine. All mutations are serialized by mu and
// persisted before the method returns.
type Gate struct {
	mu     sync.RWMutex
	cfg    Config
	state  State
	store  store.Store
	now    func() time.Time
	dirty  bool
	onKill func(reason string)
	logger zerolog.Logger
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithKillSwitchHook registers a callback fired after the kill switch latches.
func WithKillSwitchHook(fn func(reason string)) Option {
	return func(g *Gate) { g.onKill = fn }
}

// NewGate loads persisted state from st. A missing or unreadable state starts
// from zero; read errors are logged, not returned.
func NewGate(ctx context.Context, st store.Store, cfg Config, opts ...Option) *Gate {
	g := &Gate{
		cfg:    cfg,
		store:  st,
		now:    time.Now,
		logger: log.With().Str("component", "risk").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state = g.zeroState()

	if st != nil {
		var loaded State
		found, err := st.Read(ctx, store.KeyRiskState, &loaded)
		switch {
		case err != nil:
			g.logger.Error().Err(err).Msg("failed to load risk state, starting from defaults")
		case found:
			if loaded.LastTradeTimestamps == nil {
				loaded.LastTradeTimestamps = make(map[string]time.Time)
			}
			g.state = loaded
		}
	}

	g.logger.Info().
		Bool("kill_switch", g.state.KillSwitchActive).
		Int("consecutive_failures", g.state.ConsecutiveFailures).
		Float64("daily_loss", g.state.DailyLoss).
		Msg("risk gate initialized")
	return g
}

// NewInMemory creates a gate without persistence.
func NewInMemory(cfg Config, opts ...Option) *Gate {
	return NewGate(context.Background(), nil, cfg, opts...)
}

func (g *Gate) zeroState() State {
	return State{
		LastResetDate:       g.today(),
		LastTradeTimestamps: make(map[string]time.Time),
	}
}

func (g *Gate) today() string {
	return g.now().UTC().Format(dateLayout)
}

// Config returns the active limits.
func (g *Gate) Config() Config {
	return g.cfg
}

// CanTrade runs the checks in fixed order and returns the first failure.
func (g *Gate) CanTrade(ctx context.Context, assetID, userID string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dirty {
		g.persistLocked(ctx)
	}
	if g.checkDailyResetLocked() {
		g.persistLocked(ctx)
	}
	return g.decideLocked(assetID, userID)
}

func (g *Gate) decideLocked(assetID, userID string) Decision {
	s := &g.state

	if s.KillSwitchActive {
		reason := "Kill switch activated due to consecutive failures"
		if s.KillSwitchReason != "" {
			reason = "Kill switch active: " + s.KillSwitchReason
		}
		return Decision{Allowed: false, Reason: reason}
	}

	if g.cfg.MaxDailyLossPercent > 0 && s.DailyLoss >= g.cfg.MaxDailyLossPercent {
		return Decision{Allowed: false, Reason: fmt.Sprintf("Daily loss limit exceeded: %.2f%%", s.DailyLoss)}
	}

	if g.cfg.EnableLossStreakProtection && g.cfg.MaxLossStreak > 0 && s.LossStreak >= g.cfg.MaxLossStreak {
		return Decision{Allowed: false, Reason: fmt.Sprintf("Loss streak protection: %d consecutive losses", s.LossStreak)}
	}

	if g.cfg.EnableOvertradingProtection && g.cfg.MinTimeBetweenTradesSeconds > 0 && assetID != "" {
		if last, ok := s.LastTradeTimestamps[tradeKey(userID, assetID)]; ok {
			cooldown := time.Duration(g.cfg.MinTimeBetweenTradesSeconds) * time.Second
			if elapsed := g.now().Sub(last); elapsed < cooldown {
				wait := int(math.Ceil((cooldown - elapsed).Seconds()))
				return Decision{Allowed: false, Reason: fmt.Sprintf("Overtrading protection: %ds until next trade", wait)}
			}
		}
	}

	return Decision{Allowed: true, Reason: "All risk checks passed"}
}

// checkDailyResetLocked zeroes daily counters on the first call of a new UTC day.
func (g *Gate) checkDailyResetLocked() bool {
	today := g.today()
	if g.state.LastResetDate == today {
		return false
	}
	g.logger.Info().Str("from", g.state.LastResetDate).Str("to", today).
		Float64("daily_loss", g.state.DailyLoss).Msg("daily risk counters reset")
	g.state.DailyLoss = 0
	g.state.TradeCount = 0
	g.state.LastResetDate = today
	return true
}

// RecordSuccess updates counters after a confirmed trade.
func (g *Gate) RecordSuccess(ctx context.Context, out TradeOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkDailyResetLocked()

	s := &g.state
	s.ConsecutiveFailures = 0
	s.LastTradeTimestamps[tradeKey(out.UserID, out.AssetID)] = g.now()
	s.TradeCount++

	if out.PnL < 0 {
		s.LossStreak++
		s.DailyLoss += math.Abs(out.PnLPercent)
	} else {
		s.LossStreak = 0
	}

	g.persistLocked(ctx)
}

// IsFundingFailure reports whether info describes a balance/allowance problem.
func IsFundingFailure(info FailureInfo) bool {
	return info.FundingError || strings.Contains(info.Reason, FundingIssueMarker)
}

// RecordFailure records a failed attempt. Funding failures are tallied
// separately and never count toward the kill switch.
func (g *Gate) RecordFailure(ctx context.Context, info FailureInfo) {
	var tripped string

	g.mu.Lock()
	s := &g.state
	if IsFundingFailure(info) {
		s.FundingFailures++
		g.logger.Warn().Str("asset", info.AssetID).Str("reason", info.Reason).
			Int("funding_failures", s.FundingFailures).
			Msg("funding failure recorded, not counted toward kill switch")
	} else {
		s.ConsecutiveFailures++
		g.logger.Warn().Str("asset", info.AssetID).Str("reason", info.Reason).
			Int("consecutive_failures", s.ConsecutiveFailures).
			Int("max", g.cfg.MaxConsecutiveFailures).
			Msg("trade failure recorded")

		if g.cfg.EnableKillSwitch && !s.KillSwitchActive &&
			s.ConsecutiveFailures >= g.cfg.MaxConsecutiveFailures {
			tripped = fmt.Sprintf("%d consecutive failures (last: %s)", s.ConsecutiveFailures, info.Reason)
			g.activateLocked(tripped)
		}
	}
	g.persistLocked(ctx)
	g.mu.Unlock()

	if tripped != "" && g.onKill != nil {
		g.onKill(tripped)
	}
}

// ActivateKillSwitch latches the halt. Only ResetKillSwitch clears it.
func (g *Gate) ActivateKillSwitch(ctx context.Context, reason string) {
	g.mu.Lock()
	g.activateLocked(reason)
	g.persistLocked(ctx)
	g.mu.Unlock()

	if g.onKill != nil {
		g.onKill(reason)
	}
}

func (g *Gate) activateLocked(reason string) {
	now := g.now()
	g.state.KillSwitchActive = true
	g.state.KillSwitchReason = reason
	g.state.KillSwitchAt = &now
	g.logger.Error().Str("reason", reason).Msg("🚨 KILL SWITCH ACTIVATED, trading halted")
}

// ResetKillSwitch is the operator action that resumes trading.
func (g *Gate) ResetKillSwitch(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.KillSwitchActive = false
	g.state.KillSwitchReason = ""
	g.state.KillSwitchAt = nil
	g.state.ConsecutiveFailures = 0
	g.logger.Info().Msg("kill switch deactivated")
	g.persistLocked(ctx)
}

// ValidateSlippage compares the execution price to the expected one.
func (g *Gate) ValidateSlippage(expected, executed float64, direction string) SlippageCheck {
	if expected <= 0 || executed <= 0 {
		return SlippageCheck{Valid: false, Reason: "missing price data"}
	}
	bps := math.Abs(executed-expected) / expected * 10000
	if bps > g.cfg.MaxSlippageBps {
		g.logger.Warn().Str("direction", direction).Float64("slippage_bps", bps).
			Float64("max_bps", g.cfg.MaxSlippageBps).Msg("slippage exceeds tolerance")
		return SlippageCheck{
			Valid:       false,
			SlippageBps: bps,
			Reason:      fmt.Sprintf("Slippage %.0fbps exceeds max %.0fbps", bps, g.cfg.MaxSlippageBps),
		}
	}
	return SlippageCheck{Valid: true, SlippageBps: bps}
}

// UpdateBalance tracks the vault balance and derives the daily loss from the
// drawdown against the first balance seen.
func (g *Gate) UpdateBalance(ctx context.Context, balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &g.state
	if s.StartBalance == 0 {
		s.StartBalance = balance
	}
	s.CurrentBalance = balance
	if s.StartBalance > 0 {
		s.DailyLoss = math.Max(0, (s.StartBalance-balance)/s.StartBalance*100)
	}
	g.persistLocked(ctx)
}

// Reset wipes all counters, including the kill switch.
func (g *Gate) Reset(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = g.zeroState()
	g.logger.Warn().Msg("risk state reset")
	g.persistLocked(ctx)
}

// Status returns a snapshot. It does not apply the daily reset.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	d := g.decideLocked("", "")
	return Status{
		State:          g.state.clone(),
		TradingAllowed: d.Allowed,
		Reason:         d.Reason,
		PersistPending: g.dirty,
		Config:         g.cfg,
	}
}

// persistLocked writes the state. On failure the gate keeps running and the
// next call retries.
func (g *Gate) persistLocked(ctx context.Context) {
	if g.store == nil {
		return
	}
	if err := g.store.Write(ctx, store.KeyRiskState, g.state); err != nil {
		g.dirty = true
		g.logger.Error().Err(err).Msg("failed to persist risk state, will retry")
		return
	}
	g.dirty = false
}
