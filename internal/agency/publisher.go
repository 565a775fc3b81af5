// Package agency hands filed case reports to the responsible agency through
// durable RabbitMQ queues, one queue per agency.
package agency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/report"
)

// DefaultQueuePrefix is prepended to the agency slug to form the queue name.
const DefaultQueuePrefix = "cases"

// Handoff is the message body delivered to an agency queue.
type Handoff struct {
	Agency report.Agency     `json:"agency"`
	Case   report.CaseReport `json:"case"`
	SentAt time.Time         `json:"sentAt"`
}

// QueueName returns the queue that receives cases for an agency.
func QueueName(prefix string, a report.Agency) string {
	if prefix == "" {
		prefix = DefaultQueuePrefix
	}
	return prefix + "." + a.Slug
}

// Publisher publishes case hand-offs to RabbitMQ. It reconnects lazily when
// the connection or channel has been closed.
type Publisher struct {
	url    string
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

// NewPublisher dials RabbitMQ and opens a channel.
func NewPublisher(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		prefix:   prefix,
		logger:   logger.With("component", "agency"),
		declared: make(map[string]bool),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("agency: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("agency: open channel: %w", err)
	}
	p.conn = conn
	p.channel = ch
	p.declared = make(map[string]bool)
	p.logger.Info("connected to rabbitmq")
	return nil
}

// NotifyAgency publishes the case to the agency's durable queue as a
// persistent message keyed by case ID.
func (p *Publisher) NotifyAgency(ctx context.Context, a report.Agency, r report.CaseReport) error {
	msg, err := buildPublishing(a, r, time.Now())
	if err != nil {
		return err
	}
	queue := QueueName(p.prefix, a)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil || p.channel.IsClosed() {
		p.logger.Warn("rabbitmq connection closed, reconnecting")
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
	}

	if !p.declared[queue] {
		_, err := p.channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("agency: declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	if err := p.channel.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("agency: publish %s: %w", queue, err)
	}
	p.logger.Info("case handed to agency", "case_id", r.CaseID, "queue", queue)
	return nil
}

func buildPublishing(a report.Agency, r report.CaseReport, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(Handoff{Agency: a, Case: r, SentAt: now.UTC()})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("agency: marshal: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		MessageId:    r.CaseID,
		Type:         "case.filed",
	}, nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
