package strategy

import (
	"context"
	"math"
)

// Signal is a trading decision.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// ParseSignal normalises s and reports whether it is a known decision.
func ParseSignal(s string) (Signal, bool) {
	switch Signal(s) {
	case Buy, Sell, Hold:
		return Signal(s), true
	}
	return Hold, false
}

// MinHistory is the number of prices every strategy needs before it is evaluated.
const MinHistory = 15

// SignalResult is the outcome of one evaluation. Never mutated after creation.
type SignalResult struct {
	Signal       Signal             `json:"signal"`
	Confidence   float64            `json:"confidence"`
	Reason       string             `json:"reason"`
	StrategyID   int                `json:"strategyId"`
	StrategyName string             `json:"strategyName,omitempty"`
	Indicators   map[string]float64 `json:"indicators,omitempty"`
}

// HoldResult builds a zero-confidence HOLD.
func HoldResult(strategyID int, reason string) SignalResult {
	return SignalResult{Signal: Hold, Reason: reason, StrategyID: strategyID}
}

// Params is a strategy's numeric parameter bundle.
type Params map[string]float64

// Float returns the parameter as configured, or def when it is missing or NaN.
// Zero is a valid threshold.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok && !math.IsNaN(v) {
		return v
	}
	return def
}

// Int returns the parameter truncated to an int, or def when missing or not positive.
func (p Params) Int(key string, def int) int {
	if v := int(p.Float(key, 0)); v > 0 {
		return v
	}
	return def
}

// Func is a pure strategy implementation. It fills Signal, Confidence,
// Reason and Indicators; the engine stamps the strategy identity.
type Func func(prices []float64, params Params) SignalResult

// Definition is one configured strategy.
type Definition struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	// Type selects the implementation; empty means the builtin for ID.
	Type       string `yaml:"type" json:"type,omitempty"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Parameters Params `yaml:"parameters" json:"parameters"`
}

// Set is the loaded strategy configuration.
type Set struct {
	DefaultStrategy int          `yaml:"default_strategy" json:"defaultStrategy"`
	Strategies      []Definition `yaml:"strategies" json:"strategies"`
}

// Source produces signals. Implementations may be local or remote; callers
// apply their own deadline through ctx.
type Source interface {
	Signal(ctx context.Context, strategyID int, assetID string, prices []float64) (SignalResult, error)
}
