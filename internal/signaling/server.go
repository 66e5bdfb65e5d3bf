package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/announce"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/metrics"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/ratelimit"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/rooms"
)

const (
	wsWriteWait = 1 * time.Second

	// sendQueueSize bounds per-connection outbound buffering. A connection
	// that falls this far behind is dropped as a slow consumer so it cannot
	// stall fan-out to the rest of its room.
	sendQueueSize = 64
)

// Config carries the collaborators and transport knobs for the WebSocket
// server.
type Config struct {
	Logger   *slog.Logger
	Registry *rooms.Registry
	Metrics  *metrics.Metrics

	// Announce mirrors room lifecycle events; nil disables mirroring.
	Announce announce.Publisher

	// IdleTimeout closes connections with no inbound traffic (including pong
	// replies) for this long. PingInterval must be shorter than IdleTimeout.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	// Inbound signaling hardening.
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Server implements the WebSocket signaling surface.
//
// Endpoints:
//   - GET /signal : JSON signaling with trickle ICE
//
// Construct with NewServer; the zero value has no engine attached.
type Server struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	engine   *Engine
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]*conn
	closed bool
}

func NewServer(cfg Config) *Server {
	s := &Server{
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,

		IdleTimeout:          cfg.IdleTimeout,
		PingInterval:         cfg.PingInterval,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,

		upgrader: websocket.Upgrader{
			// Origin checks are enforced by the outer httpserver origin
			// middleware. For unit tests that hit the server directly,
			// accept all origins here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
	s.engine = NewEngine(cfg.Logger, cfg.Registry, cfg.Metrics, s, cfg.Announce)
	return s
}

// Engine exposes the relay engine, mainly for stats endpoints.
func (s *Server) Engine() *Engine {
	return s.engine
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal", s.handleSignal)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ServeHTTP upgrades the request and runs the connection loops. It lets the
// Server be mounted directly on an outer mux, typically behind the origin
// policy.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handleSignal(w, r)
}

// Stats is the occupancy snapshot served by GET /stats. Embedding flattens
// the room counters into the same JSON object.
type Stats struct {
	Connections int `json:"connections"`
	rooms.Stats
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	n := len(s.conns)
	s.mu.RUnlock()
	return Stats{Connections: n, Stats: s.engine.Registry().Stats()}
}

// StatsHandler serves the occupancy snapshot for dashboards and debugging.
func (s *Server) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Stats())
	})
}

// Close drops every live connection, notifying each with a going-away close
// frame. New upgrades are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		writeClose(c.sock, websocket.CloseGoingAway, "server shutting down")
		c.close()
	}
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout <= 0 {
		return 75 * time.Second
	}
	return s.IdleTimeout
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval <= 0 {
		return 25 * time.Second
	}
	return s.PingInterval
}

func (s *Server) maxMessageBytes() int64 {
	if s.MaxMessageBytes <= 0 {
		return 64 * 1024
	}
	return s.MaxMessageBytes
}

func (s *Server) maxMessagesPerSecond() int {
	if s.MaxMessagesPerSecond <= 0 {
		return 50
	}
	return s.MaxMessagesPerSecond
}

// conn is one live WebSocket connection. The write loop is the only writer
// of data frames; close frames go through WriteControl, which is safe to use
// concurrently.
type conn struct {
	id   string
	sock *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "signaling engine not configured", http.StatusInternalServerError)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	if !s.register(c) {
		writeClose(sock, websocket.CloseGoingAway, "server shutting down")
		_ = sock.Close()
		return
	}

	s.Metrics.Inc(metrics.EventConnectionsOpened)
	s.Logger.Info("connection opened", "conn_id", c.id, "remote_addr", r.RemoteAddr)

	go s.writeLoop(c)
	s.engine.HandleConnect(c.id)
	s.readLoop(c)
}

func (s *Server) register(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func (s *Server) readLoop(c *conn) {
	defer func() {
		s.unregister(c)
		c.close()
		s.engine.HandleDisconnect(c.id)
		s.Metrics.Inc(metrics.EventConnectionsClosed)
		s.Logger.Info("connection closed", "conn_id", c.id)
	}()

	c.sock.SetReadLimit(s.maxMessageBytes())
	s.refreshReadDeadline(c)
	c.sock.SetPongHandler(func(string) error {
		s.refreshReadDeadline(c)
		return nil
	})

	max := int64(s.maxMessagesPerSecond())
	limiter := ratelimit.NewTokenBucket(ratelimit.RealClock{}, max, max)

	for {
		msgType, data, err := c.sock.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				writeClose(c.sock, websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		s.refreshReadDeadline(c)

		// Apply the rate limit *after* reading the message so bytes already
		// in the TCP receive buffer are consumed. Closing with unread data
		// pending can abort the connection before the close frame is
		// delivered.
		if !limiter.Allow(1) {
			s.Metrics.Inc(metrics.EventRateLimited)
			s.failConn(c, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			s.failConn(c, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if err := s.engine.HandleMessage(c.id, data); err != nil {
			s.Metrics.Inc(metrics.EventProtocolErrors)
			s.Logger.Warn("protocol error", "conn_id", c.id, "err", err)
			s.failConn(c, websocket.ClosePolicyViolation, "bad message")
			return
		}
	}
}

func (s *Server) writeLoop(c *conn) {
	ticker := time.NewTicker(s.pingInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues event for connID and reports whether the connection was still
// registered. A connection whose queue is full is dropped as a slow consumer
// rather than allowed to stall the relay.
func (s *Server) Send(connID string, event any) bool {
	s.mu.RLock()
	c := s.conns[connID]
	s.mu.RUnlock()
	if c == nil {
		return false
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.Logger.Error("marshal outbound event", "conn_id", connID, "err", err)
		return false
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		s.Metrics.Inc(metrics.EventSlowConsumers)
		s.Logger.Warn("slow consumer dropped", "conn_id", connID)
		writeClose(c.sock, websocket.ClosePolicyViolation, "send queue overflow")
		c.close()
		return false
	}
}

func (s *Server) failConn(c *conn, code int, reason string) {
	writeClose(c.sock, code, reason)
	c.close()
}

func (s *Server) refreshReadDeadline(c *conn) {
	_ = c.sock.SetReadDeadline(time.Now().Add(s.idleTimeout()))
}

func writeClose(sock *websocket.Conn, code int, reason string) {
	_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
