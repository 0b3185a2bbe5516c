package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-core/internal/engine"
)

type recorder struct {
	mu     sync.Mutex
	ids    []string
	calls  []string
	delay  time.Duration
	ctxErr []error
}

func (r *recorder) AssetIDs() []string { return r.ids }

func (r *recorder) RunCycle(ctx context.Context, id string) engine.CycleResult {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	r.ctxErr = append(r.ctxErr, ctx.Err())
	return engine.CycleResult{AssetID: id, Outcome: engine.OutcomeHold}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestTickRoundRobin(t *testing.T) {
	r := &recorder{ids: []string{"A", "B", "C"}}
	s := New(r, Config{Rotate: true})
	for i := 0; i < 4; i++ {
		require.Len(t, s.Tick(context.Background()), 1)
	}
	assert.Equal(t, []string{"A", "B", "C", "A"}, r.snapshot())
}

func TestTickAllSequential(t *testing.T) {
	r := &recorder{ids: []string{"A", "B"}}
	s := New(r, Config{Rotate: false})
	res := s.Tick(context.Background())
	require.Len(t, res, 2)
	assert.Equal(t, []string{"A", "B"}, r.snapshot())
}

func TestTickNoAssets(t *testing.T) {
	s := New(&recorder{}, Config{})
	assert.Empty(t, s.Tick(context.Background()))
}

func TestInFlightCycleSurvivesShutdown(t *testing.T) {
	r := &recorder{ids: []string{"A"}, delay: 50 * time.Millisecond}
	s := New(r, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, []string{"A"}, r.snapshot())
	r.mu.Lock()
	assert.NoError(t, r.ctxErr[0])
	r.mu.Unlock()
}

func TestRunTicksOnInterval(t *testing.T) {
	r := &recorder{ids: []string{"A", "B"}}
	s := New(r, Config{Interval: 10 * time.Millisecond, Rotate: true})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, len(r.snapshot()), 3)
}
