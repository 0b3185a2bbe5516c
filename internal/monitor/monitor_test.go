package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"sentinel-core/internal/events"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSink) Send(m string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *captureSink) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestMonitorForwardsAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	sink := &captureSink{}
	(&Monitor{Bus: bus, Sink: sink}).Start(ctx)

	bus.Publish(events.EventKillSwitch, events.RiskAlert{Kind: "kill_switch", Message: "3 consecutive failures"})
	bus.Publish(events.EventRiskAlert, events.RiskAlert{AssetID: "WETH", Kind: "slippage", Message: "1200bps"})

	deadline := time.Now().Add(time.Second)
	for len(sink.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := sink.all()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 alerts, got %v", msgs)
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "kill_switch: 3 consecutive failures") || !strings.Contains(joined, "slippage (WETH): 1200bps") {
		t.Fatalf("unexpected alert text: %v", msgs)
	}
}

func TestSnapshotCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.RecordCycle(OutcomeTraded, 20*time.Millisecond)
	m.RecordCycle(OutcomeHold, 10*time.Millisecond)
	m.RecordTrade("WETH", 5*time.Millisecond)
	m.RecordTradeFailure("WETH", true)
	m.RecordTradeFailure("WETH", false)

	s := m.GetSnapshot()
	if s.TotalCycles != 2 || s.SuccessfulTrades != 1 || s.FailedTrades != 2 || s.FundingFailures != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.AvgCycleTimeMs < 14.9 || s.AvgCycleTimeMs > 15.1 {
		t.Fatalf("avg cycle time=%v, expected 15", s.AvgCycleTimeMs)
	}
}

func TestLatencyHistogramWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{100, 1, 2, 3} {
		h.Record(v)
	}
	st := h.Stats()
	if st.Count != 3 || st.Max != 3 || st.Min != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
