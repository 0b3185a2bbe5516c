package monitor

import (
	"github.com/rs/zerolog/log"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Warn().Str("component", "alerts").Msg(message)
	return nil
}
