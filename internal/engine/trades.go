package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel-core/internal/performance"
	"sentinel-core/internal/store"
	"sentinel-core/internal/strategy"
)

// TradeRecord is one confirmed trade. Records are never mutated.
type TradeRecord struct {
	ID              string          `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	UserID          string          `json:"userId"`
	AssetID         string          `json:"assetId"`
	TradingPair     string          `json:"tradingPair"`
	SignalType      strategy.Signal `json:"signalType"`
	TokenIn         string          `json:"tokenIn"`
	TokenOut        string          `json:"tokenOut"`
	AmountIn        string          `json:"amountIn"`
	TxHash          string          `json:"txHash"`
	GasUsed         uint64          `json:"gasUsed"`
	SlippagePercent float64         `json:"slippagePercent"`
	BlockNumber     uint64          `json:"blockNumber"`
	Price           float64         `json:"price"`
	ExecutionPrice  float64         `json:"executionPrice,omitempty"`
	StrategyID      int             `json:"strategyId"`
	Confidence      float64         `json:"confidence"`
	Reason          string          `json:"reason"`
	PnL             float64         `json:"pnl"`
}

func newTradeID() string { return uuid.NewString() }

// recentTrades is the document stored under the "trades" key.
type recentTrades struct {
	Trades      []TradeRecord `json:"trades"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// DefaultRecentTrades bounds the queryable collection.
const DefaultRecentTrades = 500

// TradeLog appends to the durable log and maintains the bounded recent-trades
// document. The in-memory copy survives store failures.
type TradeLog struct {
	st     store.Store
	cap    int
	mu     sync.RWMutex
	recent []TradeRecord
}

// NewTradeLog restores the recent-trades document from st.
func NewTradeLog(ctx context.Context, st store.Store, capacity int) (*TradeLog, error) {
	if capacity <= 0 {
		capacity = DefaultRecentTrades
	}
	l := &TradeLog{st: st, cap: capacity}
	if st == nil {
		return l, nil
	}
	var doc recentTrades
	if _, err := st.Read(ctx, store.KeyRecentTrades, &doc); err != nil {
		return l, fmt.Errorf("load recent trades: %w", err)
	}
	l.recent = trimTrades(doc.Trades, capacity)
	return l, nil
}

func trimTrades(trades []TradeRecord, capacity int) []TradeRecord {
	if len(trades) > capacity {
		trades = trades[len(trades)-capacity:]
	}
	return append([]TradeRecord(nil), trades...)
}

// Append records rec. The in-memory list is always updated; store errors are
// returned joined.
func (l *TradeLog) Append(ctx context.Context, rec TradeRecord) error {
	l.mu.Lock()
	l.recent = append(l.recent, rec)
	if len(l.recent) > l.cap {
		l.recent = l.recent[len(l.recent)-l.cap:]
	}
	doc := recentTrades{Trades: append([]TradeRecord(nil), l.recent...), LastUpdated: rec.Timestamp}
	l.mu.Unlock()

	if l.st == nil {
		return nil
	}
	var errs []error
	if err := l.st.Append(ctx, store.CollectionTradeLog, rec); err != nil {
		errs = append(errs, fmt.Errorf("append trade log: %w", err))
	}
	if err := l.st.Write(ctx, store.KeyRecentTrades, doc); err != nil {
		errs = append(errs, fmt.Errorf("write recent trades: %w", err))
	}
	return errors.Join(errs...)
}

// Recent returns up to limit trades, newest first. limit <= 0 returns all.
func (l *TradeLog) Recent(limit int) []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TradeRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.recent[i])
	}
	return out
}

// Len is the number of trades held in memory.
func (l *TradeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.recent)
}

// Results converts the held trades for performance aggregation, oldest first.
func (l *TradeLog) Results() []performance.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]performance.Result, len(l.recent))
	for i, t := range l.recent {
		out[i] = performance.Result{StrategyID: t.StrategyID, PnL: t.PnL}
	}
	return out
}
