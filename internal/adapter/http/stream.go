package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 512
)

// handleStream upgrades to a websocket and pushes every published field.
// The first frame is the current field, if any. An optional ?hemisphere=
// query restricts frames to one hemisphere.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var (
		filter   domain.Hemisphere
		filtered bool
	)
	if v := r.URL.Query().Get("hemisphere"); v != "" {
		h, ok := domain.ParseHemisphere(v)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown hemisphere %q", v))
			return
		}
		filter, filtered = h, true
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.fields.Subscribe()
	defer unsubscribe()

	s.metrics.StreamClients.Inc()
	defer s.metrics.StreamClients.Dec()
	s.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go s.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-done:
			s.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)
			return
		case f := <-updates:
			if f == nil {
				continue
			}
			var payload any = f
			if filtered {
				payload = hemisphereResponse(f, filter)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(payload); err != nil {
				s.logger.Debug("stream write failed", "error", err, "remote", r.RemoteAddr)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
// It closes done when the connection fails or the client goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read failed", "error", err)
			}
			return
		}
	}
}
