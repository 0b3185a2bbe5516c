package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel-core/internal/events"
)

// Monitor forwards risk alerts and kill switch activations to a sink.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
}

// Start subscribes and returns immediately; delivery stops when ctx ends.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Warn().Msg("monitor not fully configured; skipping")
		return
	}
	alerts, unsubAlerts := m.Bus.Subscribe(events.EventRiskAlert, 50)
	kills, unsubKills := m.Bus.Subscribe(events.EventKillSwitch, 10)
	go func() {
		defer unsubAlerts()
		defer unsubKills()
		for {
			var msg any
			var ok bool
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-alerts:
			case msg, ok = <-kills:
			}
			if !ok {
				return
			}
			if err := m.Sink.Send(formatAlert(msg)); err != nil {
				log.Error().Err(err).Msg("alert delivery failed")
			}
		}
	}()
}

func formatAlert(msg any) string {
	return "[" + time.Now().UTC().Format(time.RFC3339) + "] " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case events.RiskAlert:
		if t.AssetID != "" {
			return fmt.Sprintf("%s (%s): %s", t.Kind, t.AssetID, t.Message)
		}
		return fmt.Sprintf("%s: %s", t.Kind, t.Message)
	default:
		return "alert triggered"
	}
}
