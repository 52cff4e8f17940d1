package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/uptix/hub/internal/metrics"
	"github.com/uptix/hub/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxAgentFrame  = 1 << 20
	maxViewerFrame = 512
)

// Agents and dashboards connect from anywhere; access is controlled by the
// auth middleware in front of the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAgentSocket reads agent_metrics events off one agent connection
// and ingests them in the order received. Agents get no acknowledgement.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade agent socket", "err", err)
		return
	}
	defer conn.Close()
	if !s.trackAgent(conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"), time.Now().Add(writeWait))
		return
	}
	defer s.untrackAgent(conn)

	metrics.AgentConnections.Inc()
	defer metrics.AgentConnections.Dec()
	s.logger.Info("agent connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	conn.SetReadLimit(maxAgentFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The request context is not cancelled for hijacked connections.
	ctx := s.baseCtx
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("agent socket closed", "remote", r.RemoteAddr, "err", err)
			}
			s.logger.Info("agent disconnected", "remote", r.RemoteAddr)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("ignoring undecodable agent message", "remote", r.RemoteAddr, "err", err)
			continue
		}
		if ev.Event != models.EventAgentMetrics {
			s.logger.Debug("ignoring agent event", "event", ev.Event)
			continue
		}

		var report models.Report
		if err := json.Unmarshal(ev.Data, &report); err != nil {
			s.logger.Warn("ignoring undecodable agent report", "remote", r.RemoteAddr, "err", err)
			continue
		}
		// Failures are logged and counted by the coordinator.
		s.ingest.Ingest(ctx, report)
	}
}

// pingLoop keeps an agent connection alive. It is the connection's only
// writer.
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleLiveSocket streams broadcast events to a dashboard until either
// side goes away or the hub drops the subscriber for falling behind.
func (s *Server) handleLiveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade live socket", "err", err)
		return
	}

	sub := s.hub.Subscribe()
	s.logger.Debug("live subscriber connected", "remote", r.RemoteAddr)

	go s.livePump(conn, sub.C())

	// Viewers only send control frames; reading detects disconnects.
	conn.SetReadLimit(maxViewerFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.Unsubscribe(sub)
	s.logger.Debug("live subscriber disconnected", "remote", r.RemoteAddr)
}

func (s *Server) livePump(conn *websocket.Conn, msgs <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-msgs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
