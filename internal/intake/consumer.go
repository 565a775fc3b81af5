package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
)

// DefaultConcurrency is the number of messages processed at once.
const DefaultConcurrency = 32

// Submitter runs the verification pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Throttle limits submissions per sender.
type Throttle interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// InboundBus delivers inbound messages.
type InboundBus interface {
	SubscribeInbound(handler nats.MsgHandler) error
}

// Consumer handles verify.inbound with a bounded pool of workers.
type Consumer struct {
	bus       InboundBus
	replies   *Notifier
	submitter Submitter
	throttle  Throttle
	logger    *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a Consumer. throttle may be nil.
func NewConsumer(bus InboundBus, replies ReplyBus, submitter Submitter, throttle Throttle, concurrency int, logger *slog.Logger) *Consumer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		bus:       bus,
		replies:   NewNotifier(replies),
		submitter: submitter,
		throttle:  throttle,
		logger:    logger.With("component", "intake"),
		sem:       make(chan struct{}, concurrency),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to verify.inbound.
func (c *Consumer) Start() error {
	if err := c.bus.SubscribeInbound(c.dispatch); err != nil {
		return err
	}
	c.logger.Info("intake consumer started", "concurrency", cap(c.sem))
	return nil
}

// Stop cancels in-flight work and waits for workers to finish.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("intake consumer stopped")
}

// dispatch blocks the subscription goroutine while the pool is full, which
// pushes back on NATS instead of buffering without bound.
func (c *Consumer) dispatch(msg *nats.Msg) {
	select {
	case c.sem <- struct{}{}:
	case <-c.ctx.Done():
		return
	}
	c.wg.Add(1)
	go func() {
		defer func() {
			<-c.sem
			c.wg.Done()
			if r := recover(); r != nil {
				c.logger.Error("panic while handling inbound message", "panic", r)
			}
		}()
		ack := c.Handle(c.ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(ack)
		if err != nil {
			c.logger.Error("failed to marshal ack", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			c.logger.Warn("failed to ack inbound message", "error", err)
		}
	}()
}

// Handle processes one inbound message and returns the ack for the adapter.
func (c *Consumer) Handle(ctx context.Context, data []byte) Ack {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Warn("invalid inbound message", "error", err)
		return Ack{Status: AckRejected, Error: "malformed message"}
	}
	in.From = strings.TrimSpace(in.From)
	in.Channel = strings.ToLower(strings.TrimSpace(in.Channel))
	if in.From == "" || in.Channel == "" {
		return Ack{Status: AckRejected, Error: "from and channel are required"}
	}

	if c.throttle != nil {
		if ok, _ := c.throttle.Allow(ctx, in.From, ratelimit.RuleSubmission); !ok {
			metrics.SubmissionsThrottled.WithLabelValues(in.Channel).Inc()
			c.reply(in, FormatRateLimited(c.throttle.RetryAfter(ctx, in.From, ratelimit.RuleSubmission)), nil)
			return Ack{Status: AckRejected, Error: "rate_limited"}
		}
	}

	res, err := c.submitter.Submit(ctx, pipeline.Request{
		Content:    content.Normalize(in.Payload),
		UserPhone:  in.From,
		Channel:    in.Channel,
		Language:   in.Language,
		ReceivedAt: in.receivedAt(),
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		c.reply(in, InvalidReply, nil)
		return Ack{Status: AckRejected, Error: err.Error()}
	case err != nil:
		// The adapter redelivers; the citizen is not told anything failed.
		c.logger.Error("submission failed", "channel", in.Channel, "message_id", in.ID, "error", err)
		return Ack{Status: AckRetry, Error: err.Error()}
	}

	c.reply(in, FormatReply(*res, false), res)
	return Ack{Status: AckOK, VerificationID: res.VerificationID}
}

func (c *Consumer) reply(in InboundMessage, text string, res *pipeline.Result) {
	out := Outbound{
		To:        in.From,
		Channel:   in.Channel,
		Language:  in.Language,
		InReplyTo: in.ID,
		Text:      text,
		Result:    res,
	}
	if err := c.replies.publish(out); err != nil {
		c.logger.Warn("failed to publish reply", "channel", in.Channel, "message_id", in.ID, "error", err)
	}
}
