package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"sentinel-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is the envelope written to dashboard clients.
type streamMessage struct {
	Type events.Event `json:"type"`
	Data any          `json:"data"`
}

var streamTopics = []events.Event{
	events.EventCycleCompleted,
	events.EventTradeExecuted,
	events.EventRiskAlert,
	events.EventKillSwitch,
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	out := make(chan streamMessage, 100)
	done := make(chan struct{})
	defer close(done)
	for _, topic := range streamTopics {
		ch, unsub := s.Bus.Subscribe(topic, 50)
		defer unsub()
		go forward(topic, ch, out, done)
	}

	// Reader detects client disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}
}

func forward(topic events.Event, in <-chan any, out chan<- streamMessage, done <-chan struct{}) {
	for payload := range in {
		select {
		case out <- streamMessage{Type: topic, Data: payload}:
		case <-done:
			return
		default:
			// Slow client: drop rather than block the bus fan-out.
		}
	}
}
