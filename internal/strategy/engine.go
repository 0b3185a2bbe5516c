package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Builtin strategy types.
const (
	TypeRSISMA    = "rsi_sma"
	TypeBollinger = "bollinger"
	TypeMACD      = "macd"
)

var builtinByID = map[int]string{
	1: TypeRSISMA,
	2: TypeBollinger,
	3: TypeMACD,
}

// Engine resolves strategy ids against the loaded Set and dispatches to the
// registered implementation.
type Engine struct {
	mu       sync.RWMutex
	set      Set
	byID     map[int]Definition
	registry map[string]Func
	logger   zerolog.Logger
}

// NewEngine builds an engine with the builtin strategies registered.
func NewEngine(set Set) *Engine {
	e := &Engine{
		registry: map[string]Func{
			TypeRSISMA:    RSISMA,
			TypeBollinger: Bollinger,
			TypeMACD:      MACD,
		},
		logger: log.With().Str("component", "strategy").Logger(),
	}
	e.Load(set)
	return e
}

// Register adds or replaces an implementation for a strategy type.
func (e *Engine) Register(kind string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[kind] = fn
}

// Load swaps in a new strategy set.
func (e *Engine) Load(set Set) {
	byID := make(map[int]Definition, len(set.Strategies))
	for _, d := range set.Strategies {
		if d.Type == "" {
			d.Type = builtinByID[d.ID]
		}
		byID[d.ID] = d
	}
	e.mu.Lock()
	e.set = set
	e.byID = byID
	e.mu.Unlock()
}

// Definitions lists the configured strategies ordered by id.
func (e *Engine) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Definition, 0, len(e.byID))
	for _, d := range e.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultID returns the configured fallback strategy id.
func (e *Engine) DefaultID() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.set.DefaultStrategy
}

// resolve looks up id, falling back once to the default strategy.
func (e *Engine) resolve(id int) (Definition, Func, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def, ok := e.byID[id]
	if !ok || !def.Enabled {
		e.logger.Warn().Int("strategy", id).Int("default", e.set.DefaultStrategy).
			Msg("strategy not found or disabled, using default")
		def, ok = e.byID[e.set.DefaultStrategy]
		if !ok || !def.Enabled {
			return Definition{}, nil, false
		}
	}
	fn, ok := e.registry[def.Type]
	if !ok {
		return def, nil, false
	}
	return def, fn, true
}

// Evaluate computes a signal for the price history. It never panics or
// returns an error; every failure resolves to HOLD.
func (e *Engine) Evaluate(strategyID int, prices []float64, assetID string) (res SignalResult) {
	def, fn, ok := e.resolve(strategyID)
	if !ok {
		return HoldResult(strategyID, "unknown strategy")
	}

	if len(prices) < MinHistory {
		res = HoldResult(def.ID, "insufficient history")
		res.StrategyName = def.Name
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("asset", assetID).Int("strategy", def.ID).
				Msg("strategy evaluation panicked")
			res = HoldResult(def.ID, fmt.Sprintf("evaluation error: %v", r))
			res.StrategyName = def.Name
		}
	}()

	res = fn(prices, def.Parameters)
	if _, valid := ParseSignal(string(res.Signal)); !valid {
		res.Signal = Hold
		res.Confidence = 0
	}
	res.StrategyID = def.ID
	res.StrategyName = def.Name
	return res
}

// Signal makes the engine a Source.
func (e *Engine) Signal(_ context.Context, strategyID int, assetID string, prices []float64) (SignalResult, error) {
	return e.Evaluate(strategyID, prices, assetID), nil
}
