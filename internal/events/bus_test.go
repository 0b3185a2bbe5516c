package events

import (
	"testing"
	"time"
)

func TestBusFanOutAndUnsubscribe(t *testing.T) {
	b := NewBus()
	a, unsubA := b.Subscribe(EventTradeExecuted, 1)
	c, unsubC := b.Subscribe(EventTradeExecuted, 1)
	defer unsubC()

	b.Publish(EventTradeExecuted, "tx1")
	for _, ch := range []<-chan any{a, c} {
		select {
		case got := <-ch:
			if got != "tx1" {
				t.Fatalf("unexpected payload %v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}

	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("expected channel closed after unsubscribe")
	}
}

func TestBusDropsForSlowSubscribers(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRiskAlert, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		b.Publish(EventRiskAlert, 1)
		b.Publish(EventRiskAlert, 2) // buffer full, dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
	if got := <-ch; got != 1 {
		t.Fatalf("expected first payload, got %v", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", b.Dropped())
	}
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventCycleCompleted, 1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	unsub() // must not double close

	late, _ := b.Subscribe(EventCycleCompleted, 1)
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel for late subscriber")
	}
}
