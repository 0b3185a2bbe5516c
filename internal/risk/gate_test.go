package risk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sentinel-core/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type flakyStore struct {
	*store.Memory
	failWrites bool
	writes     int
}

func (f *flakyStore) Write(ctx context.Context, key string, v any) error {
	f.writes++
	if f.failWrites {
		return errors.New("disk full")
	}
	return f.Memory.Write(ctx, key, v)
}

func TestKillSwitchCheckedFirst(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory(DefaultConfig())
	g.ActivateKillSwitch(ctx, "operator halt")

	d := g.CanTrade(ctx, "WETH", "default")
	if d.Allowed {
		t.Fatalf("expected kill switch to block trading")
	}
	if !strings.HasPrefix(d.Reason, "Kill switch") {
		t.Fatalf("expected kill switch reason, got %q", d.Reason)
	}
}

func TestKillSwitchThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 3

	var hookReason string
	g := NewInMemory(cfg, WithKillSwitchHook(func(r string) { hookReason = r }))

	steps := []struct {
		info       FailureInfo
		wantCount  int
		wantActive bool
	}{
		{FailureInfo{AssetID: "WETH", Reason: "execution reverted"}, 1, false},
		{FailureInfo{AssetID: "WETH", Reason: "FUNDING_ISSUE: Insufficient vault balance"}, 1, false},
		{FailureInfo{AssetID: "WETH", Reason: "allowance", FundingError: true}, 1, false},
		{FailureInfo{AssetID: "WETH", Reason: "timeout waiting for receipt"}, 2, false},
		{FailureInfo{AssetID: "WBTC", Reason: "execution reverted"}, 3, true},
	}
	for i, step := range steps {
		g.RecordFailure(ctx, step.info)
		st := g.Status()
		if st.ConsecutiveFailures != step.wantCount {
			t.Fatalf("step %d: consecutiveFailures=%d, expected %d", i, st.ConsecutiveFailures, step.wantCount)
		}
		if st.KillSwitchActive != step.wantActive {
			t.Fatalf("step %d: killSwitchActive=%v, expected %v", i, st.KillSwitchActive, step.wantActive)
		}
	}
	if hookReason == "" {
		t.Fatalf("expected kill switch hook to fire")
	}
	if g.Status().FundingFailures != 2 {
		t.Fatalf("expected 2 funding failures, got %d", g.Status().FundingFailures)
	}

	// Latched: a success does not clear it.
	g.RecordSuccess(ctx, TradeOutcome{AssetID: "WETH", UserID: "default"})
	if !g.Status().KillSwitchActive {
		t.Fatalf("kill switch must stay latched until reset")
	}

	g.ResetKillSwitch(ctx)
	st := g.Status()
	if st.KillSwitchActive || st.ConsecutiveFailures != 0 || !st.TradingAllowed {
		t.Fatalf("reset did not clear kill switch: %+v", st)
	}
}

func TestKillSwitchDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.EnableKillSwitch = false
	g := NewInMemory(cfg)
	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, FailureInfo{Reason: "reverted"})
	}
	if g.Status().KillSwitchActive {
		t.Fatalf("kill switch should not latch when disabled")
	}
}

func TestFundingFailuresNeverTripKillSwitch(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory(DefaultConfig())
	for i := 0; i < 10; i++ {
		g.RecordFailure(ctx, FailureInfo{AssetID: "WETH", Reason: "FUNDING_ISSUE: Insufficient vault balance", FundingError: true})
	}
	st := g.Status()
	if st.ConsecutiveFailures != 0 || st.KillSwitchActive {
		t.Fatalf("funding failures leaked into kill switch accounting: %+v", st)
	}
	if st.FundingFailures != 10 {
		t.Fatalf("expected 10 funding failures, got %d", st.FundingFailures)
	}
}

func TestDailyResetIdempotence(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g := NewInMemory(DefaultConfig(), WithClock(clock.Now))

	g.RecordSuccess(ctx, TradeOutcome{AssetID: "WETH", PnL: -10, PnLPercent: 2})
	if got := g.Status().DailyLoss; got != 2 {
		t.Fatalf("dailyLoss=%v, expected 2", got)
	}

	day := g.Status().LastResetDate
	g.CanTrade(ctx, "WETH", "default")
	clock.Advance(3 * time.Hour)
	g.CanTrade(ctx, "WETH", "default")
	st := g.Status()
	if st.DailyLoss != 2 || st.LastResetDate != day {
		t.Fatalf("same-day CanTrade reset counters: %+v", st)
	}

	clock.Advance(24 * time.Hour)
	g.CanTrade(ctx, "WETH", "default")
	st = g.Status()
	if st.DailyLoss != 0 || st.TradeCount != 0 {
		t.Fatalf("next-day CanTrade did not reset: %+v", st)
	}
	if st.LastResetDate != "2026-03-11" {
		t.Fatalf("lastResetDate=%s, expected 2026-03-11", st.LastResetDate)
	}
}

func TestCanTradeChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("daily loss limit", func(t *testing.T) {
		g := NewInMemory(DefaultConfig())
		g.RecordSuccess(ctx, TradeOutcome{PnL: -1, PnLPercent: 6})
		d := g.CanTrade(ctx, "WETH", "default")
		if d.Allowed || !strings.HasPrefix(d.Reason, "Daily loss limit exceeded") {
			t.Fatalf("unexpected decision: %+v", d)
		}
	})

	t.Run("loss streak only when enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxLossStreak = 2
		g := NewInMemory(cfg)
		g.RecordSuccess(ctx, TradeOutcome{PnL: -1})
		g.RecordSuccess(ctx, TradeOutcome{PnL: -1})
		if d := g.CanTrade(ctx, "WETH", "default"); !d.Allowed {
			t.Fatalf("loss streak blocked while disabled: %+v", d)
		}

		cfg.EnableLossStreakProtection = true
		g = NewInMemory(cfg)
		g.RecordSuccess(ctx, TradeOutcome{PnL: -1})
		g.RecordSuccess(ctx, TradeOutcome{PnL: -1})
		d := g.CanTrade(ctx, "WETH", "default")
		if d.Allowed || d.Reason != "Loss streak protection: 2 consecutive losses" {
			t.Fatalf("unexpected decision: %+v", d)
		}

		g.RecordSuccess(ctx, TradeOutcome{PnL: 5})
		if d := g.CanTrade(ctx, "WETH", "default"); !d.Allowed {
			t.Fatalf("a win should clear the streak: %+v", d)
		}
	})

	t.Run("overtrading cooldown per user and asset", func(t *testing.T) {
		clock := newClock()
		cfg := DefaultConfig()
		cfg.EnableOvertradingProtection = true
		cfg.MinTimeBetweenTradesSeconds = 60
		g := NewInMemory(cfg, WithClock(clock.Now))

		g.RecordSuccess(ctx, TradeOutcome{UserID: "default", AssetID: "WETH"})
		clock.Advance(15 * time.Second)

		d := g.CanTrade(ctx, "WETH", "default")
		if d.Allowed || d.Reason != "Overtrading protection: 45s until next trade" {
			t.Fatalf("unexpected decision: %+v", d)
		}
		if d := g.CanTrade(ctx, "WBTC", "default"); !d.Allowed {
			t.Fatalf("other asset should not be throttled: %+v", d)
		}

		clock.Advance(46 * time.Second)
		if d := g.CanTrade(ctx, "WETH", "default"); !d.Allowed {
			t.Fatalf("cooldown should have elapsed: %+v", d)
		}
	})

	t.Run("all pass", func(t *testing.T) {
		d := NewInMemory(DefaultConfig()).CanTrade(ctx, "WETH", "default")
		if !d.Allowed || d.Reason != "All risk checks passed" {
			t.Fatalf("unexpected decision: %+v", d)
		}
	})
}

func TestValidateSlippage(t *testing.T) {
	g := NewInMemory(DefaultConfig())
	tests := []struct {
		name      string
		expected  float64
		executed  float64
		wantValid bool
		wantBps   float64
	}{
		{"exact", 100, 100, true, 0},
		{"within", 100, 101, true, 100},
		{"at limit", 100, 90, true, 1000},
		{"beyond", 100, 111, false, 1100},
		{"missing expected", 0, 100, false, 0},
		{"missing execution", 100, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.ValidateSlippage(tt.expected, tt.executed, "BUY")
			if got.Valid != tt.wantValid {
				t.Fatalf("valid=%v, expected %v (%+v)", got.Valid, tt.wantValid, got)
			}
			if diff := got.SlippageBps - tt.wantBps; diff > 1e-6 || diff < -1e-6 {
				t.Fatalf("bps=%v, expected %v", got.SlippageBps, tt.wantBps)
			}
		})
	}
}

func TestUpdateBalance(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory(DefaultConfig())

	g.UpdateBalance(ctx, 1000)
	g.UpdateBalance(ctx, 960)
	st := g.Status()
	if st.StartBalance != 1000 || st.CurrentBalance != 960 {
		t.Fatalf("unexpected balances: %+v", st)
	}
	if st.DailyLoss != 4 {
		t.Fatalf("dailyLoss=%v, expected 4", st.DailyLoss)
	}

	g.UpdateBalance(ctx, 1100)
	if g.Status().DailyLoss != 0 {
		t.Fatalf("gains must not produce negative loss")
	}
}

func TestStatePersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newClock()

	g := NewGate(ctx, st, DefaultConfig(), WithClock(clock.Now))
	g.RecordFailure(ctx, FailureInfo{Reason: "reverted"})
	g.RecordSuccess(ctx, TradeOutcome{UserID: "default", AssetID: "WETH", PnL: -1, PnLPercent: 1.5})
	g.RecordFailure(ctx, FailureInfo{Reason: "reverted"})

	restarted := NewGate(ctx, st, DefaultConfig(), WithClock(clock.Now))
	got := restarted.Status()
	if got.ConsecutiveFailures != 1 || got.DailyLoss != 1.5 || got.LossStreak != 1 {
		t.Fatalf("state not restored: %+v", got)
	}
	if _, ok := got.LastTradeTimestamps["default_WETH"]; !ok {
		t.Fatalf("trade timestamp not restored")
	}
}

func TestPersistFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Memory: store.NewMemory(), failWrites: true}
	g := NewGate(ctx, fs, DefaultConfig())

	g.RecordFailure(ctx, FailureInfo{Reason: "reverted"})
	if !g.Status().PersistPending {
		t.Fatalf("expected pending persist after failed write")
	}

	fs.failWrites = false
	g.CanTrade(ctx, "WETH", "default")
	if g.Status().PersistPending {
		t.Fatalf("expected retry to clear pending flag")
	}

	var saved State
	found, err := fs.Read(ctx, store.KeyRiskState, &saved)
	if err != nil || !found || saved.ConsecutiveFailures != 1 {
		t.Fatalf("retried state not saved: found=%v err=%v state=%+v", found, err, saved)
	}
}

func TestConcurrentRecording(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 1000
	g := NewGate(ctx, store.NewMemory(), cfg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); g.RecordFailure(ctx, FailureInfo{Reason: "reverted"}) }()
		go func() { defer wg.Done(); g.CanTrade(ctx, "WETH", "default") }()
		go func() { defer wg.Done(); _ = g.Status() }()
	}
	wg.Wait()

	if got := g.Status().ConsecutiveFailures; got != 50 {
		t.Fatalf("consecutiveFailures=%d, expected 50", got)
	}
}
