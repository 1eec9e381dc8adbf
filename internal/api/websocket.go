package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leafbox/leafbox-core/internal/bridges/esp"
	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
	"github.com/leafbox/leafbox-core/internal/infrastructure/logging"
	"github.com/leafbox/leafbox-core/internal/infrastructure/sysinfo"
)

// Dashboard channel topics.
const (
	TopicStatus      = "status"
	TopicCommand     = "command"
	TopicCalibration = "calibration"
)

const (
	// wsSendBufferSize is the per-session outbound message buffer size.
	wsSendBufferSize = 256

	// sampleTimeout bounds one host metrics sample.
	sampleTimeout = 2 * time.Second

	defaultStatusInterval = 3 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// WSMessage is the envelope of every message on the dashboard channel,
// in both directions.
type WSMessage struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsCalibration is the inbound calibration request from a dashboard.
type wsCalibration struct {
	MAC   string          `json:"mac"`
	Step  json.RawMessage `json:"step"`
	Plant json.RawMessage `json:"plant"`
}

// Forwarder relays dashboard requests to devices. Implemented by the ESP
// bridge.
type Forwarder interface {
	ForwardCommand(cmd esp.CommandMessage) error
	ForwardCalibration(mac string, step esp.CalibrationStep) error
}

// Hub manages dashboard sessions and fans events out to all of them.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	sampler sysinfo.Sampler

	sessions map[*Session]struct{}
	mu       sync.RWMutex

	forwarder   Forwarder
	forwarderMu sync.RWMutex
}

// Session is one connected dashboard.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub. The sampler feeds the periodic
// status event.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, sampler sysinfo.Sampler) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		sampler:  sampler,
		sessions: make(map[*Session]struct{}),
	}
}

// SetForwarder sets where inbound dashboard commands go. Until it is set
// they are dropped.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarderMu.Lock()
	h.forwarder = f
	h.forwarderMu.Unlock()
}

func (h *Hub) getForwarder() Forwarder {
	h.forwarderMu.RLock()
	defer h.forwarderMu.RUnlock()
	return h.forwarder
}

// Run broadcasts the status event every status interval. It blocks until
// ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	interval := time.Duration(h.cfg.StatusInterval) * time.Second
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			if h.SessionCount() == 0 {
				continue
			}
			if snap, ok := h.sample(ctx); ok {
				h.Broadcast(TopicStatus, snap)
			}
		}
	}
}

func (h *Hub) sample(ctx context.Context) (sysinfo.Snapshot, bool) {
	if h.sampler == nil {
		return sysinfo.Snapshot{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	snap, err := h.sampler.Sample(ctx)
	if err != nil {
		h.logger.Warn("sampling host status failed", "error", err)
		return sysinfo.Snapshot{}, false
	}
	return snap, true
}

// Register adds a session and sends it an immediate status snapshot.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("dashboard connected", "sessions", h.SessionCount())

	if snap, ok := h.sample(context.Background()); ok {
		if data, err := encodeEvent(TopicStatus, snap); err == nil {
			s.trySend(data)
		}
	}
}

// Unregister removes a session.
// Only the goroutine that successfully removes the session from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, existed := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	if existed {
		close(s.send)
	}
	h.logger.Debug("dashboard disconnected", "sessions", h.SessionCount())
}

// Broadcast sends {topic, data} to every session. Slow sessions whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, data any) {
	msg, err := encodeEvent(topic, data)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "topic", topic, "error", err)
		return
	}

	// Snapshot the session list under the lock, then release before sending.
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.trySend(msg)
	}
	if len(sessions) > 0 {
		h.logger.Debug("broadcast sent", "topic", topic, "recipients", len(sessions))
	}
}

// SessionCount returns the number of connected dashboards.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		close(s.send)
		if s.conn != nil {
			s.conn.Close()
		}
		delete(h.sessions, s)
	}
}

// dispatch handles one message received from a dashboard.
func (h *Hub) dispatch(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug("dropping invalid dashboard message", "error", err)
		return
	}

	fwd := h.getForwarder()
	if fwd == nil {
		h.logger.Debug("no forwarder, dropping dashboard message", "topic", msg.Topic)
		return
	}

	switch msg.Topic {
	case TopicCommand:
		var cmd esp.CommandMessage
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			h.logger.Debug("dropping malformed command", "error", err)
			return
		}
		if err := fwd.ForwardCommand(cmd); err != nil {
			h.logger.Warn("forwarding dashboard command failed", "error", err)
		}
	case TopicCalibration:
		var cal wsCalibration
		if err := json.Unmarshal(msg.Data, &cal); err != nil {
			h.logger.Debug("dropping malformed calibration", "error", err)
			return
		}
		step := esp.CalibrationStep{Step: cal.Step, Plant: cal.Plant}
		if err := fwd.ForwardCalibration(cal.MAC, step); err != nil {
			h.logger.Warn("forwarding calibration failed", "error", err)
		}
	default:
		h.logger.Debug("dropping dashboard message on unknown topic", "topic", msg.Topic)
	}
}

func encodeEvent(topic string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Topic: topic, Data: payload})
}

// handleWebSocket upgrades the HTTP connection to a dashboard session.
// With websocket.require_auth the access token comes from the "token"
// query parameter or the Authorization header.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.wsCfg.RequireAuth {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = bearerToken(r)
		}
		if _, err := s.auth.Validate(token); err != nil {
			writeUnauthorized(w, "invalid or missing token")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	session := &Session{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(session)

	go session.writePump(s.wsCfg)
	go session.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (s *Session) readPump(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := keepalive(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read error", "error", err)
			} else {
				s.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.hub.dispatch(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := keepalive(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// keepalive returns the ping interval and pong timeout, with defaults for
// unset values.
func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// trySend queues data for the session. Full buffers and sessions closed
// mid-broadcast are skipped.
func (s *Session) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case s.send <- data:
	default:
	}
}
