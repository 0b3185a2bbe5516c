// Package engine runs the per-asset trading cycle: price, risk gate, signal,
// duplicate suppression, pre-trade validation, swap and bookkeeping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"sentinel-core/internal/events"
	"sentinel-core/internal/ledger"
	"sentinel-core/internal/market"
	"sentinel-core/internal/monitor"
	"sentinel-core/internal/risk"
	"sentinel-core/internal/store"
	"sentinel-core/internal/strategy"
)

// Config holds the orchestrator's tunables.
type Config struct {
	TraderID           string
	Owner              string
	AutoTrading        bool
	DuplicateThreshold float64
	HistoryCap         int
	SignalTimeout      time.Duration
	ConfirmTimeout     time.Duration
	DefaultStrategyID  int
	// BalanceToken, when set, is read after every confirmed trade and fed to
	// the risk gate's balance tracking.
	BalanceToken string
	// SnapshotEvery logs a performance snapshot every N cycles.
	SnapshotEvery int
}

func (c *Config) applyDefaults() {
	if c.TraderID == "" {
		c.TraderID = "default"
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 2
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 100
	}
	if c.SignalTimeout <= 0 {
		c.SignalTimeout = 5 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 2 * time.Minute
	}
	if c.DefaultStrategyID <= 0 {
		c.DefaultStrategyID = 1
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = 10
	}
}

// Deps are the orchestrator's collaborators. Signals defaults to Strategies;
// Remediator, Store, Bus and Metrics are optional.
type Deps struct {
	Prices     market.Source
	Strategies *strategy.Engine
	Signals    strategy.Source
	Gate       *risk.Gate
	Ledger     ledger.Client
	Remediator ledger.FundingRemediator
	Store      store.Store
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics
	Book       AssetBook
}

// Orchestrator owns the per-asset states and drives RunCycle.
type Orchestrator struct {
	cfg        Config
	prices     market.Source
	strategies *strategy.Engine
	signals    strategy.Source
	gate       *risk.Gate
	ledger     ledger.Client
	remediator ledger.FundingRemediator
	trades     *TradeLog
	bus        *events.Bus
	metrics    *monitor.SystemMetrics
	book       AssetBook

	assets map[string]*AssetState
	order  []string
	cycles atomic.Uint64

	logger zerolog.Logger
	now    func() time.Time
}

// New wires an orchestrator over the enabled assets of deps.Book.
func New(ctx context.Context, cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.applyDefaults()
	if deps.Prices == nil || deps.Gate == nil || deps.Ledger == nil || deps.Strategies == nil {
		return nil, errors.New("engine: prices, gate, ledger and strategies are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = monitor.NewSystemMetrics()
	}
	signals := deps.Signals
	if signals == nil {
		signals = deps.Strategies
	}

	logger := log.With().Str("component", "orchestrator").Logger()
	trades, err := NewTradeLog(ctx, deps.Store, DefaultRecentTrades)
	if err != nil {
		logger.Warn().Err(err).Msg("starting with empty trade history")
	}

	o := &Orchestrator{
		cfg:        cfg,
		prices:     deps.Prices,
		strategies: deps.Strategies,
		signals:    signals,
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		remediator: deps.Remediator,
		trades:     trades,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		book:       deps.Book,
		assets:     make(map[string]*AssetState),
		logger:     logger,
		now:        time.Now,
	}
	for _, a := range deps.Book.Enabled() {
		o.assets[a.ID] = newAssetState(a, cfg.HistoryCap)
		o.order = append(o.order, a.ID)
		logger.Info().Str("asset", a.ID).Str("pair", a.TradingPair).Msg("asset initialised")
	}
	if len(o.order) == 0 {
		return nil, errors.New("engine: no enabled assets")
	}
	return o, nil
}

// AssetIDs returns the enabled asset ids in rotation order.
func (o *Orchestrator) AssetIDs() []string {
	return append([]string(nil), o.order...)
}

// Cycle outcomes, mirrored into metrics.
const (
	OutcomeCollecting = "collecting"
	OutcomeHold       = monitor.OutcomeHold
	OutcomeBlocked    = monitor.OutcomeBlocked
	OutcomeTraded     = monitor.OutcomeTraded
	OutcomeFailed     = monitor.OutcomeFailed
	OutcomeSkipped    = monitor.OutcomeSkipped
	OutcomePanicked   = monitor.OutcomePanicked
)

// CycleResult is the outcome of one RunCycle, published on the bus and
// streamed to the dashboard.
type CycleResult struct {
	AssetID      string                 `json:"assetId"`
	Price        float64                `json:"price"`
	HistoryLen   int                    `json:"historyLen"`
	Outcome      string                 `json:"outcome"`
	Reason       string                 `json:"reason"`
	Signal       *strategy.SignalResult `json:"signal,omitempty"`
	Trade        *TradeRecord           `json:"trade,omitempty"`
	FundingIssue bool                   `json:"fundingIssue,omitempty"`
	Error        string                 `json:"error,omitempty"`
	At           time.Time              `json:"at"`
	DurationMs   float64                `json:"durationMs"`
}

// RunCycle executes one trading cycle for assetID. It never panics and never
// returns an error: every failure ends as a non-trade outcome.
func (o *Orchestrator) RunCycle(ctx context.Context, assetID string) (res CycleResult) {
	start := o.now()
	res = CycleResult{AssetID: assetID, At: start}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("asset", assetID).Interface("panic", r).Msg("cycle aborted")
			res.Outcome = OutcomePanicked
			res.Reason = "cycle aborted"
			res.Error = fmt.Sprint(r)
			res.Trade = nil
		}
		o.finish(&res, time.Since(start))
	}()

	st, ok := o.assets[assetID]
	if !ok {
		res.Outcome = OutcomeSkipped
		res.Reason = "unknown asset"
		return res
	}
	if !st.running.TryLock() {
		res.Outcome = OutcomeSkipped
		res.Reason = "cycle already running"
		return res
	}
	defer st.running.Unlock()

	o.runCycle(ctx, st, &res)
	return res
}

func (o *Orchestrator) runCycle(ctx context.Context, st *AssetState, res *CycleResult) {
	asset := st.Config
	logger := o.logger.With().Str("asset", asset.ID).Logger()

	price, err := o.prices.Price(ctx, asset.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("price unavailable")
		res.Outcome = OutcomeSkipped
		res.Reason = "price unavailable"
		res.Error = err.Error()
		return
	}
	prices := st.observe(price)
	res.Price = price
	res.HistoryLen = len(prices)
	o.publish(events.EventPriceTick, events.PriceTick{AssetID: asset.ID, Price: price})

	if len(prices) < strategy.MinHistory {
		res.Outcome = OutcomeCollecting
		res.Reason = fmt.Sprintf("collecting price history (%d/%d)", len(prices), strategy.MinHistory)
		return
	}

	if d := o.gate.CanTrade(ctx, asset.ID, o.cfg.TraderID); !d.Allowed {
		logger.Info().Str("reason", d.Reason).Msg("trading blocked")
		hold := strategy.HoldResult(o.strategyFor(asset), d.Reason)
		res.Signal = &hold
		res.Outcome = OutcomeBlocked
		res.Reason = d.Reason
		return
	}

	sig := o.evaluate(ctx, asset, prices)
	if sig.Signal != strategy.Hold && st.isDuplicate(sig.Signal, price, o.cfg.DuplicateThreshold) {
		logger.Info().Str("signal", string(sig.Signal)).Msg("duplicate trade prevented")
		sig.Signal = strategy.Hold
		sig.Confidence = 0
		sig.Reason = "duplicate trade prevented"
	}
	st.setLastSignal(sig)
	res.Signal = &sig
	res.Reason = sig.Reason

	logger.Info().Str("signal", string(sig.Signal)).Float64("confidence", sig.Confidence).
		Int("strategy", sig.StrategyID).Float64("price", price).Msg(sig.Reason)

	if sig.Signal == strategy.Hold {
		res.Outcome = OutcomeHold
		return
	}
	if !o.cfg.AutoTrading {
		res.Outcome = OutcomeHold
		res.Reason = "auto-trading disabled: " + sig.Reason
		return
	}

	rec, err := o.execute(ctx, asset, sig, price)
	if err != nil {
		funding := ClassifyFailure(err)
		logger.Error().Err(err).Bool("funding", funding).Msg("trade failed")
		o.gate.RecordFailure(ctx, risk.FailureInfo{
			UserID:       o.cfg.TraderID,
			AssetID:      asset.ID,
			Reason:       err.Error(),
			FundingError: funding,
		})
		o.metrics.RecordTradeFailure(asset.ID, funding)
		res.Outcome = OutcomeFailed
		res.FundingIssue = funding
		res.Error = err.Error()
		if funding {
			res.Reason = risk.FundingIssueMarker + ": " + err.Error()
		}
		o.publish(events.EventTradeFailed, *res)
		return
	}

	st.recordTrade(sig.Signal, price, rec.Timestamp)
	if err := o.trades.Append(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("persist trade")
	}
	// PnL is not derived from fills yet; the gate receives the recorded value.
	o.gate.RecordSuccess(ctx, risk.TradeOutcome{UserID: o.cfg.TraderID, AssetID: asset.ID, PnL: rec.PnL})
	o.SyncBalance(ctx)

	res.Outcome = OutcomeTraded
	res.Trade = &rec
	logger.Info().Str("tx", rec.TxHash).Uint64("block", rec.BlockNumber).Msg("trade executed")
	o.publish(events.EventTradeExecuted, rec)
}

func (o *Orchestrator) strategyFor(a AssetConfig) int {
	if a.StrategyID > 0 {
		return a.StrategyID
	}
	return o.cfg.DefaultStrategyID
}

// evaluate asks the signal source with a deadline. Errors become HOLD.
func (o *Orchestrator) evaluate(ctx context.Context, asset AssetConfig, prices []float64) strategy.SignalResult {
	id := o.strategyFor(asset)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SignalTimeout)
	defer cancel()

	start := time.Now()
	sig, err := o.signals.Signal(sctx, id, asset.ID, prices)
	if err != nil {
		o.logger.Warn().Err(err).Str("asset", asset.ID).Msg("signal source failed")
		sig = strategy.HoldResult(id, "signal error: "+err.Error())
	}
	name := sig.StrategyName
	if name == "" {
		name = fmt.Sprint(sig.StrategyID)
	}
	o.metrics.RecordSignal(name, string(sig.Signal), time.Since(start))
	return sig
}

// execute validates funding, submits the swap and waits for confirmation.
func (o *Orchestrator) execute(ctx context.Context, asset AssetConfig, sig strategy.SignalResult, price float64) (TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ConfirmTimeout)
	defer cancel()

	tokenIn, ok := o.book.Tokens[asset.TokenIn]
	if !ok {
		return TradeRecord{}, fmt.Errorf("token %s not configured", asset.TokenIn)
	}
	tokenOut, ok := o.book.Tokens[asset.TokenOut]
	if !ok {
		return TradeRecord{}, fmt.Errorf("token %s not configured", asset.TokenOut)
	}
	amountIn, err := ledger.ToBaseUnits(asset.TradeAmount, tokenIn.Decimals)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("trade amount: %w", err)
	}
	minOut, err := ledger.ToBaseUnits(asset.MinOutput, tokenOut.Decimals)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("min output: %w", err)
	}

	if err := o.validateFunding(ctx, asset.TokenIn, tokenIn.Address, amountIn); err != nil {
		return TradeRecord{}, err
	}

	timer := monitor.NewTimer(nil)
	rcpt, err := o.ledger.SubmitSwap(ctx, ledger.SwapRequest{
		Owner:         o.cfg.Owner,
		TokenIn:       tokenIn.Address,
		TokenOut:      tokenOut.Address,
		AmountIn:      amountIn,
		MinAmountOut:  minOut,
		Path:          []string{tokenIn.Address, tokenOut.Address},
		StrategyID:    sig.StrategyID,
		ExpectedPrice: price,
	})
	if err != nil {
		return TradeRecord{}, fmt.Errorf("submit swap: %w", err)
	}
	o.metrics.RecordTrade(asset.ID, timer.Stop())

	if rcpt.ExecutionPrice > 0 {
		if chk := o.gate.ValidateSlippage(price, rcpt.ExecutionPrice, string(sig.Signal)); !chk.Valid {
			o.logger.Warn().Str("asset", asset.ID).Float64("bps", chk.SlippageBps).Msg(chk.Reason)
			o.publish(events.EventRiskAlert, events.RiskAlert{AssetID: asset.ID, Kind: "slippage", Message: chk.Reason})
		}
	}

	return TradeRecord{
		ID:              newTradeID(),
		Timestamp:       o.now().UTC(),
		UserID:          o.cfg.TraderID,
		AssetID:         asset.ID,
		TradingPair:     asset.TradingPair,
		SignalType:      sig.Signal,
		TokenIn:         asset.TokenIn,
		TokenOut:        asset.TokenOut,
		AmountIn:        asset.TradeAmount,
		TxHash:          rcpt.TxHash,
		GasUsed:         rcpt.GasUsed,
		SlippagePercent: math.Round(slippagePercent(asset)*100) / 100,
		BlockNumber:     rcpt.BlockNumber,
		Price:           price,
		ExecutionPrice:  rcpt.ExecutionPrice,
		StrategyID:      sig.StrategyID,
		Confidence:      sig.Confidence,
		Reason:          sig.Reason,
		PnL:             0,
	}, nil
}

// validateFunding checks balance (hard stop) then allowance, attempting one
// remediation before a single re-check.
func (o *Orchestrator) validateFunding(ctx context.Context, symbol, token string, required decimal.Decimal) error {
	bal, err := o.ledger.GetTokenBalance(ctx, o.cfg.Owner, token)
	if err != nil {
		return fmt.Errorf("read vault balance: %w", err)
	}
	if bal.LessThan(required) {
		return &ledger.FundingError{Token: symbol, Required: required, Available: bal, Err: ledger.ErrInsufficientBalance}
	}

	allowance, err := o.ledger.GetSpendAllowance(ctx, o.cfg.Owner, token)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if !allowance.LessThan(required) {
		return nil
	}
	short := &ledger.FundingError{Token: symbol, Required: required, Available: allowance, Err: ledger.ErrInsufficientAllowance}
	if o.remediator == nil {
		return short
	}

	o.logger.Info().Str("token", symbol).Msg("insufficient allowance, running funding setup")
	if err := o.remediator.EnsureAllowance(ctx, token, required); err != nil {
		return fmt.Errorf("auto-funding failed: %v: %w", err, short)
	}
	allowance, err = o.ledger.GetSpendAllowance(ctx, o.cfg.Owner, token)
	if err != nil {
		return fmt.Errorf("re-read allowance: %w", err)
	}
	if allowance.LessThan(required) {
		short.Available = allowance
		return fmt.Errorf("still insufficient after auto-funding: %w", short)
	}
	return nil
}

// SyncBalance feeds the configured balance token into the risk gate.
func (o *Orchestrator) SyncBalance(ctx context.Context) {
	if o.cfg.BalanceToken == "" {
		return
	}
	tok, ok := o.book.Tokens[o.cfg.BalanceToken]
	if !ok {
		o.logger.Warn().Str("token", o.cfg.BalanceToken).Msg("balance token not configured")
		return
	}
	bal, err := o.ledger.GetTokenBalance(ctx, o.cfg.Owner, tok.Address)
	if err != nil {
		o.logger.Warn().Err(err).Msg("balance refresh failed")
		return
	}
	v, _ := ledger.FromBaseUnits(bal, tok.Decimals).Float64()
	o.gate.UpdateBalance(ctx, v)
}

func (o *Orchestrator) finish(res *CycleResult, d time.Duration) {
	res.DurationMs = float64(d.Microseconds()) / 1000
	o.metrics.RecordCycle(res.Outcome, d)

	status := o.gate.Status()
	o.metrics.ObserveRisk(status.KillSwitchActive, status.ConsecutiveFailures, status.DailyLoss)
	o.publish(events.EventCycleCompleted, *res)

	if n := o.cycles.Add(1); n%uint64(o.cfg.SnapshotEvery) == 0 {
		s := o.metrics.GetSnapshot()
		o.logger.Info().
			Str("uptime", s.Uptime).
			Uint64("cycles", s.TotalCycles).
			Uint64("successful", s.SuccessfulTrades).
			Uint64("failed", s.FailedTrades).
			Float64("avg_cycle_ms", s.AvgCycleTimeMs).
			Msg("performance snapshot")
	}
}

func (o *Orchestrator) publish(e events.Event, payload any) {
	if o.bus != nil {
		o.bus.Publish(e, payload)
	}
}
