// Package messaging provides a NATS client wrapper for the verification
// service. Channel adapters publish inbound messages on verify.inbound and
// receive verdicts on verify.reply.<channel>; moderation dashboards follow
// the moderation.* subjects.
package messaging

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects.
const (
	SubjectInbound            = "verify.inbound"
	SubjectReply              = "verify.reply" // + .<channel>
	SubjectModerationEnqueued = "moderation.enqueued"
	SubjectModerationResolved = "moderation.resolved"

	// QueueVerifier load-balances inbound messages across service replicas.
	QueueVerifier = "verifier"
)

// ReplySubject returns the reply subject for a channel.
func ReplySubject(channel string) string {
	return SubjectReply + "." + channel
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "verifier",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *slog.Logger) (*NATSClient, error) {
	logger = logger.With("component", "nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("connected", "url", nc.ConnectedUrl())

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Conn exposes the underlying connection.
func (c *NATSClient) Conn() *nats.Conn {
	return c.conn
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler nats.MsgHandler) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.track(subject, sub)
	return nil
}

// QueueSubscribe registers a queue group handler so each message is handled
// by exactly one member of the group.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler nats.MsgHandler) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s/%s: %w", subject, queue, err)
	}
	c.track(subject+"#"+queue, sub)
	return nil
}

// SubscribeInbound joins the verifier queue group on verify.inbound.
func (c *NATSClient) SubscribeInbound(handler nats.MsgHandler) error {
	return c.QueueSubscribe(SubjectInbound, QueueVerifier, handler)
}

// PublishReply publishes a verdict for delivery on a channel.
func (c *NATSClient) PublishReply(channel string, data []byte) error {
	return c.Publish(ReplySubject(channel), data)
}

// SubscribeReplies subscribes to verdicts addressed to a channel.
func (c *NATSClient) SubscribeReplies(channel string, handler func(data []byte)) error {
	return c.Subscribe(ReplySubject(channel), func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeReplies removes a channel reply subscription.
func (c *NATSClient) UnsubscribeReplies(channel string) error {
	return c.unsubscribe(ReplySubject(channel))
}

// PublishModerationEvent publishes a queue event on moderation.enqueued or
// moderation.resolved.
func (c *NATSClient) PublishModerationEvent(event string, data []byte) error {
	switch event {
	case "enqueued":
		return c.Publish(SubjectModerationEnqueued, data)
	case "resolved":
		return c.Publish(SubjectModerationResolved, data)
	}
	return fmt.Errorf("nats: unknown moderation event %q", event)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain failed", "subject", subject, "error", err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain failed", "error", err)
	}

	c.logger.Info("client closed")
}

func (c *NATSClient) track(key string, sub *nats.Subscription) {
	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
