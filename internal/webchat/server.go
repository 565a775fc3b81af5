// Package webchat serves the citizen web chat over WebSocket. Each
// connection gets a session ID; verify and report messages are answered on
// the same socket, and moderator-reviewed verdicts are pushed when they
// arrive on the web reply subject.
package webchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/intake"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/protocol"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
)

// ErrUnknownSession is returned by SendMessage for sessions not connected to
// this server.
var ErrUnknownSession = errors.New("webchat: unknown session")

// Config holds tunable parameters for the web chat server.
type Config struct {
	ListenAddr      string        // address to listen on, e.g. ":8081"
	WorkerPoolSize  int           // max messages processed concurrently
	MaxConnections  int           // hard cap on total connections
	MaxMessageBytes int64         // larger frames close the connection
	RequestTimeout  time.Duration // per-message processing budget
	Heartbeat       HeartbeatConfig

	// TrustedProxyHops is the number of reverse proxies in front of the
	// server that append to X-Forwarded-For. Zero ignores the header.
	TrustedProxyHops int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8081",
		WorkerPoolSize:  256,
		MaxConnections:  20000,
		MaxMessageBytes: 64 << 10,
		RequestTimeout:  pipeline.MaxTimeout,
		Heartbeat:       DefaultHeartbeatConfig(),
	}
}

// Server upgrades HTTP requests to WebSocket and runs one read loop per
// connection. Messages from a single session are handled in order; the
// worker pool bounds how many are in flight across all sessions.
type Server struct {
	config     Config
	conns      *ConnectionManager
	handler    *Handler
	throttle   Throttle
	workerPool chan struct{}
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startedAt  time.Time
	logger     *slog.Logger
}

// NewServer creates a Server. throttle limits new connections per client IP
// and may be nil.
func NewServer(config Config, handler *Handler, throttle Throttle, logger *slog.Logger) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = DefaultConfig().WorkerPoolSize
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = DefaultConfig().MaxMessageBytes
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat = DefaultHeartbeatConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		handler:    handler,
		throttle:   throttle,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
		startedAt:  time.Now(),
		logger:     logger.With("component", "webchat"),
	}
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the heartbeat monitor and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.runHeartbeat(s.ctx.Done())

	s.logger.Info("web chat listening", "addr", s.config.ListenAddr,
		"workers", s.config.WorkerPoolSize, "max_conns", s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webchat: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades the request, registers the connection and sends
// session_created before starting its read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r, s.config.TrustedProxyHops)
	if s.throttle != nil {
		if ok, _ := s.throttle.Allow(r.Context(), ip, ratelimit.RuleConnect); !ok {
			wait := s.throttle.RetryAfter(r.Context(), ip, ratelimit.RuleConnect)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("upgrade failed", "ip", ip, "error", err)
		return
	}

	c := newConnection(uuid.New().String(), conn, ip)
	s.conns.Add(c)

	msg := encode(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{SessionID: c.ID})
	if err := c.WriteMessage(msg); err != nil {
		s.logger.Info("failed to send session_created", "session_id", c.ID, "error", err)
		s.RemoveConnection(c)
		return
	}

	s.logger.Debug("new connection", "session_id", c.ID, "ip", ip, "total", s.conns.Count())

	s.wg.Add(1)
	go s.serve(c)
}

// serve reads frames until the client goes away or stays silent past the
// heartbeat deadline.
func (s *Server) serve(c *Connection) {
	defer s.wg.Done()
	defer s.RemoveConnection(c)

	for {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.Heartbeat.deadline()))

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}
		c.touch()

		if header.OpCode.IsControl() {
			if err := c.handleControl(header, reader); err != nil {
				return
			}
			continue
		}
		if header.Length > s.config.MaxMessageBytes {
			s.logger.Info("frame too large", "session_id", c.ID, "bytes", header.Length)
			return
		}

		data := make([]byte, header.Length)
		if _, err := io.ReadFull(reader, data); err != nil {
			return
		}
		if header.OpCode != ws.OpText {
			continue
		}
		s.dispatch(c, data)
	}
}

func (s *Server) dispatch(c *Connection, data []byte) {
	select {
	case s.workerPool <- struct{}{}:
	case <-s.ctx.Done():
		return
	}
	defer func() { <-s.workerPool }()

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	reply := s.handler.HandleMessage(ctx, c.ID, data)
	if len(reply) == 0 {
		return
	}
	if err := c.WriteMessage(reply); err != nil {
		s.logger.Info("write failed", "session_id", c.ID, "error", err)
		s.RemoveConnection(c)
	}
}

// RemoveConnection unregisters and closes c.
func (s *Server) RemoveConnection(c *Connection) {
	if s.conns.Remove(c.ID) {
		s.logger.Debug("connection closed", "session_id", c.ID, "total", s.conns.Count())
	}
}

// SendMessage writes data to the session if it is connected here.
func (s *Server) SendMessage(sessionID string, data []byte) error {
	c := s.conns.Get(sessionID)
	if c == nil {
		return ErrUnknownSession
	}
	return c.WriteMessage(data)
}

// DeliverReply handles an intake.Outbound published on the web reply
// subject. Reviewed verdicts for sessions connected to this server are
// pushed as "reviewed" messages; everything else is ignored.
func (s *Server) DeliverReply(data []byte) {
	var out intake.Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("malformed web reply", "error", err)
		return
	}
	sessionID, ok := strings.CutPrefix(out.To, SenderPrefix)
	if !ok || out.Result == nil {
		return
	}

	msgType := protocol.TypeVerdict
	if out.Reviewed {
		msgType = protocol.TypeReviewed
	}
	msg := encode(msgType, protocol.VerdictMsg{Text: out.Text, Result: *out.Result})
	if err := s.SendMessage(sessionID, msg); err != nil && !errors.Is(err, ErrUnknownSession) {
		s.logger.Info("reviewed verdict not delivered", "session_id", sessionID, "error", err)
	}
}

// ConnectionCount returns the number of live sessions.
func (s *Server) ConnectionCount() int {
	return s.conns.Count()
}

// handleHealth reports the connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown stops accepting connections, closes every session and waits for
// read loops to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// clientIP returns the address the outermost trusted proxy saw. With hops
// trusted proxies that is the hops-th X-Forwarded-For entry from the right;
// entries further left are client supplied and ignored.
func clientIP(r *http.Request, hops int) string {
	if fwd := r.Header.Get("X-Forwarded-For"); hops > 0 && fwd != "" {
		parts := strings.Split(fwd, ",")
		idx := len(parts) - hops
		if idx < 0 {
			idx = 0
		}
		if ip := strings.TrimSpace(parts[idx]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
