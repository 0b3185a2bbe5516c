package engine

import (
	"sync"
	"time"

	"sentinel-core/internal/indicators"
	"sentinel-core/internal/strategy"
)

// AssetState is the per-asset runtime state. The orchestrator is the only
// writer; status readers take snapshots.
type AssetState struct {
	Config AssetConfig

	// running is held for the duration of a cycle so cycles for one asset
	// never overlap.
	running sync.Mutex

	mu            sync.RWMutex
	history       *indicators.Window
	lastTradeType strategy.Signal
	lastPrice     float64
	hasLastPrice  bool
	lastTradeTime time.Time
	tradeCount    int
	lastSignal    *strategy.SignalResult
}

func newAssetState(cfg AssetConfig, historyCap int) *AssetState {
	return &AssetState{
		Config:  cfg,
		history: indicators.NewWindow(historyCap),
	}
}

// AssetSnapshot is a read-only view of an AssetState.
type AssetSnapshot struct {
	Config        AssetConfig            `json:"config"`
	HistoryLen    int                    `json:"historyLen"`
	CurrentPrice  float64                `json:"currentPrice"`
	LastTradeType strategy.Signal        `json:"lastTradeType,omitempty"`
	LastPrice     float64                `json:"lastPrice,omitempty"`
	LastTradeTime *time.Time             `json:"lastTradeTime,omitempty"`
	TradeCount    int                    `json:"tradeCount"`
	LastSignal    *strategy.SignalResult `json:"lastSignal,omitempty"`
}

// Snapshot copies the state.
func (s *AssetState) Snapshot() AssetSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := AssetSnapshot{
		Config:        s.Config,
		HistoryLen:    s.history.Len(),
		LastTradeType: s.lastTradeType,
		LastPrice:     s.lastPrice,
		TradeCount:    s.tradeCount,
	}
	if p, ok := s.history.Last(); ok {
		snap.CurrentPrice = p
	}
	if !s.lastTradeTime.IsZero() {
		t := s.lastTradeTime
		snap.LastTradeTime = &t
	}
	if s.lastSignal != nil {
		sig := *s.lastSignal
		snap.LastSignal = &sig
	}
	return snap
}

func (s *AssetState) observe(price float64) []float64 {
	s.history.Push(price)
	return s.history.Values()
}

func (s *AssetState) setLastSignal(res strategy.SignalResult) {
	s.mu.Lock()
	s.lastSignal = &res
	s.mu.Unlock()
}

// isDuplicate reports whether sig repeats the last executed trade at a price
// within threshold of the last trade price.
func (s *AssetState) isDuplicate(sig strategy.Signal, price, threshold float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasLastPrice || sig != s.lastTradeType {
		return false
	}
	diff := price - s.lastPrice
	if diff < 0 {
		diff = -diff
	}
	return diff < threshold
}

func (s *AssetState) recordTrade(sig strategy.Signal, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradeType = sig
	s.lastPrice = price
	s.hasLastPrice = true
	s.lastTradeTime = at
	s.tradeCount++
}
