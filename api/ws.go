package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type wsInbound struct {
	Type string `json:"type"`
}

// handleWS upgrades the connection and fans the event bus out to it. The
// client may send {"type":"ping"} at any time and gets a pong back on the
// same connection; everything else inbound is ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	if err := conn.WriteJSON(map[string]any{
		"type":            "connection_established",
		"client_id":       clientID,
		"current_account": s.currentName(),
		"timestamp":       s.now(),
	}); err != nil {
		return
	}
	s.log.Debug().Str("client_id", clientID).Msg("websocket client connected")

	// Reader and writer are separate goroutines; pongs are routed through the
	// writer so only one goroutine ever writes to the connection.
	pings := make(chan struct{}, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wsInbound
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if msg.Type == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			out := struct {
				ID        string `json:"id"`
				Type      string `json:"type"`
				Account   string `json:"account_type"`
				TradeID   string `json:"trade_id,omitempty"`
				Reason    string `json:"reason,omitempty"`
				Timestamp string `json:"timestamp"`
				Data      any    `json:"data,omitempty"`
			}{
				ID:        evt.ID,
				Type:      string(evt.Type),
				Account:   evt.Account,
				TradeID:   evt.TradeID,
				Reason:    evt.Reason,
				Timestamp: s.formatTime(evt.Time),
				Data:      evt.Data,
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-pings:
			if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
