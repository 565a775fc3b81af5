// Package client provides a reusable WebSocket load test client for the
// verifier web chat. It connects using gobwas/ws (the same library the
// server uses), records the session ID from session_created, and tracks
// per-connection round-trip latency for verify requests.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/segmentio/encoding/json"
)

// ---------------------------------------------------------------------------
// Protocol message types (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeVerify = "verify"
	TypeReport = "report"
	TypePing   = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypeVerdict        = "verdict"
	TypePendingReview  = "pending_review"
	TypeReviewed       = "reviewed"
	TypeReportFiled    = "report_filed"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	SessionLatency   time.Duration // dial start to session_created
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// Reply is one answer to a verify request.
type Reply struct {
	Type    string        // verdict, pending_review, rate_limited or error
	Latency time.Duration // send to receive
	Raw     json.RawMessage
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated citizen connected to the web chat.
// Replies arrive in request order because the server handles one message per
// session at a time.
type Client struct {
	conn      net.Conn
	sessionID string
	started   time.Time
	mu        sync.Mutex
	metrics   Metrics
	pending   []time.Time // send times of unanswered requests, oldest first
	replies   chan Reply
	done      chan struct{}
	closeOnce sync.Once
}

// New connects to the given WebSocket URL and starts the read loop.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:    conn,
		started: start,
		replies: make(chan Reply, 64),
		done:    make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()

	return c, nil
}

// Throttled reports whether a dial error from New is the web chat refusing
// the upgrade with 429 Too Many Requests.
func Throttled(err error) bool {
	var status ws.StatusError
	return errors.As(err, &status) && int(status) == http.StatusTooManyRequests
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Verify sends a text message for verification and waits for the answer.
func (c *Client) Verify(ctx context.Context, text string) (Reply, error) {
	c.mu.Lock()
	c.pending = append(c.pending, time.Now())
	c.mu.Unlock()

	err := c.Send(map[string]interface{}{
		"type":    TypeVerify,
		"payload": map[string]string{"type": "text", "text": text},
	})
	if err != nil {
		return Reply{}, err
	}

	select {
	case r := <-c.replies:
		return r, nil
	case <-c.done:
		return Reply{}, fmt.Errorf("connection closed")
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// WaitForSession blocks until the server has assigned a session ID or the
// context is cancelled.
func (c *Client) WaitForSession(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before session was created")
		case <-ticker.C:
			if c.SessionID() != "" {
				return nil
			}
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// SessionID returns the session ID assigned by the server, or an empty string
// if session_created has not arrived yet.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) readLoop() {
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
			default:
				c.mu.Lock()
				c.metrics.Errors++
				c.mu.Unlock()
				c.Close()
			}
			return
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		c.mu.Unlock()

		var envelope struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case TypeSessionCreated:
			c.mu.Lock()
			c.sessionID = envelope.SessionID
			c.metrics.SessionLatency = time.Since(c.started)
			c.mu.Unlock()
		case TypeVerdict, TypePendingReview, TypeRateLimited, TypeError:
			c.deliver(envelope.Type, data)
		}
	}
}

func (c *Client) deliver(msgType string, data []byte) {
	c.mu.Lock()
	var latency time.Duration
	if len(c.pending) > 0 {
		latency = time.Since(c.pending[0])
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	select {
	case c.replies <- Reply{Type: msgType, Latency: latency, Raw: json.RawMessage(data)}:
	default:
	}
}
