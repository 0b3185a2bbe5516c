// Package market supplies asset prices to the trading loop.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrNoPrice is returned when a source has nothing for the asset.
var ErrNoPrice = errors.New("no price available")

// Source returns the current price of an asset.
type Source interface {
	Price(ctx context.Context, assetID string) (float64, error)
}

// RandomWalk generates synthetic prices for local development and dry runs.
type RandomWalk struct {
	mu     sync.Mutex
	start  float64
	step   float64
	prices map[string]float64
	rng    *rand.Rand
}

// NewRandomWalk starts every asset at start and moves it by up to ±step per call.
func NewRandomWalk(start, step float64, seed int64) *RandomWalk {
	if start <= 0 {
		start = 100
	}
	if step <= 0 {
		step = 0.5
	}
	return &RandomWalk{
		start:  start,
		step:   step,
		prices: make(map[string]float64),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Seed pins the starting price of one asset.
func (m *RandomWalk) Seed(assetID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[assetID] = price
}

func (m *RandomWalk) Price(_ context.Context, assetID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[assetID]
	if !ok {
		price = m.start
	}
	price += (m.rng.Float64()*2 - 1) * m.step
	if price <= 0 {
		price = m.step
	}
	m.prices[assetID] = price
	return price, nil
}

// Series replays fixed price sequences per asset, one value per call.
type Series struct {
	mu     sync.Mutex
	series map[string][]float64
	pos    map[string]int
}

// NewSeries builds a replaying source.
func NewSeries(series map[string][]float64) *Series {
	return &Series{series: series, pos: make(map[string]int)}
}

func (s *Series) Price(_ context.Context, assetID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals := s.series[assetID]
	i := s.pos[assetID]
	if i >= len(vals) {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, assetID)
	}
	s.pos[assetID] = i + 1
	return vals[i], nil
}
