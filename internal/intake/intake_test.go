package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verification"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBus struct {
	mu      sync.Mutex
	handler nats.MsgHandler
	replies map[string][]Outbound
	events  map[string][]moderation.Notification
}

func newFakeBus() *fakeBus {
	return &fakeBus{replies: map[string][]Outbound{}, events: map[string][]moderation.Notification{}}
}

func (b *fakeBus) SubscribeInbound(h nats.MsgHandler) error {
	b.handler = h
	return nil
}

func (b *fakeBus) PublishReply(channel string, data []byte) error {
	var out Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[channel] = append(b.replies[channel], out)
	return nil
}

func (b *fakeBus) PublishModerationEvent(event string, data []byte) error {
	var n moderation.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event] = append(b.events[event], n)
	return nil
}

func (b *fakeBus) repliesFor(channel string) []Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Outbound(nil), b.replies[channel]...)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, ratelimit.Rule) (bool, error) { return false, nil }
func (denyAll) RetryAfter(context.Context, string, ratelimit.Rule) time.Duration {
	return 42 * time.Second
}

type failingSubmitter struct{ err error }

func (f failingSubmitter) Submit(context.Context, pipeline.Request) (*pipeline.Result, error) {
	return nil, f.err
}

type countingSubmitter struct {
	n        atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingSubmitter) Submit(context.Context, pipeline.Request) (*pipeline.Result, error) {
	cur := c.inFlight.Add(1)
	for {
		p := c.peak.Load()
		if cur <= p || c.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.inFlight.Add(-1)
	c.n.Add(1)
	return &pipeline.Result{VerificationID: "VER-1-abc"}, nil
}

func newPipeline(t *testing.T) *pipeline.Service {
	t.Helper()
	svc, err := pipeline.NewService(detection.DefaultSet(testLogger()), verification.NewMemoryStore(),
		pipeline.Options{Router: routing.DefaultRouter()}, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func inbound(t *testing.T, m InboundMessage) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandle_ScamReply(t *testing.T) {
	bus := newFakeBus()
	c := NewConsumer(bus, bus, newPipeline(t), nil, 4, testLogger())

	ack := c.Handle(context.Background(), inbound(t, InboundMessage{
		ID:      "wamid.1",
		Channel: "WhatsApp",
		From:    "+23276123456",
		Payload: contentPayload("Government is giving Le500,000 to all citizens. Click here to register now"),
	}))
	if ack.Status != AckOK || ack.VerificationID == "" {
		t.Fatalf("ack = %+v", ack)
	}

	replies := bus.repliesFor("whatsapp")
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	r := replies[0]
	if r.To != "+23276123456" || r.InReplyTo != "wamid.1" {
		t.Errorf("reply addressing = %+v", r)
	}
	if !strings.Contains(r.Text, "Verdict: FALSE") {
		t.Errorf("reply text = %q", r.Text)
	}
	if r.Result == nil || r.Result.Verdict != verdict.LabelFalse {
		t.Errorf("reply result = %+v", r.Result)
	}
}

func TestHandle_Unsupported(t *testing.T) {
	bus := newFakeBus()
	c := NewConsumer(bus, bus, newPipeline(t), nil, 4, testLogger())

	ack := c.Handle(context.Background(), inbound(t, InboundMessage{
		Channel: "whatsapp",
		From:    "+23276123456",
		Payload: contentPayloadType("video"),
	}))
	if ack.Status != AckOK {
		t.Fatalf("ack = %+v", ack)
	}
	replies := bus.repliesFor("whatsapp")
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "could not analyze this content type") {
		t.Errorf("replies = %+v", replies)
	}
}

func TestHandle_Rejections(t *testing.T) {
	bus := newFakeBus()
	c := NewConsumer(bus, bus, newPipeline(t), nil, 4, testLogger())

	tests := []struct {
		name string
		data []byte
	}{
		{"malformed", []byte("{not json")},
		{"no sender", inbound(t, InboundMessage{Channel: "sms", Payload: contentPayload("hi")})},
		{"no channel", inbound(t, InboundMessage{From: "+232", Payload: contentPayload("hi")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ack := c.Handle(context.Background(), tt.data); ack.Status != AckRejected {
				t.Errorf("ack = %+v, want rejected", ack)
			}
		})
	}
}

func TestHandle_RateLimited(t *testing.T) {
	bus := newFakeBus()
	sub := &countingSubmitter{}
	c := NewConsumer(bus, bus, sub, denyAll{}, 4, testLogger())

	ack := c.Handle(context.Background(), inbound(t, InboundMessage{Channel: "sms", From: "+232", Payload: contentPayload("hi")}))
	if ack.Status != AckRejected || ack.Error != "rate_limited" {
		t.Errorf("ack = %+v", ack)
	}
	if sub.n.Load() != 0 {
		t.Error("throttled message reached the pipeline")
	}
	replies := bus.repliesFor("sms")
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "42s") {
		t.Errorf("replies = %+v", replies)
	}
}

func TestHandle_StorageUnavailableRetries(t *testing.T) {
	bus := newFakeBus()
	err := fmt.Errorf("%w: connection refused", pipeline.ErrStorageUnavailable)
	c := NewConsumer(bus, bus, failingSubmitter{err: err}, nil, 4, testLogger())

	ack := c.Handle(context.Background(), inbound(t, InboundMessage{Channel: "sms", From: "+232", Payload: contentPayload("hi")}))
	if ack.Status != AckRetry {
		t.Errorf("ack = %+v, want retry", ack)
	}
	if n := len(bus.repliesFor("sms")); n != 0 {
		t.Errorf("citizen received %d replies for a failed write", n)
	}
}

func TestHandle_InvalidInput(t *testing.T) {
	bus := newFakeBus()
	c := NewConsumer(bus, bus, failingSubmitter{err: pipeline.ErrInvalidInput}, nil, 4, testLogger())

	ack := c.Handle(context.Background(), inbound(t, InboundMessage{Channel: "sms", From: "+232", Payload: contentPayload("hi")}))
	if ack.Status != AckRejected {
		t.Errorf("ack = %+v, want rejected", ack)
	}
	replies := bus.repliesFor("sms")
	if len(replies) != 1 || replies[0].Text != InvalidReply {
		t.Errorf("replies = %+v", replies)
	}
}

func TestConsumer_BoundedPool(t *testing.T) {
	bus := newFakeBus()
	sub := &countingSubmitter{}
	c := NewConsumer(bus, bus, sub, nil, 3, testLogger())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	data := inbound(t, InboundMessage{Channel: "sms", From: "+232", Payload: contentPayload("hi")})
	for i := 0; i < 20; i++ {
		bus.handler(&nats.Msg{Data: data})
	}
	c.Stop()

	if n := sub.n.Load(); n != 20 {
		t.Errorf("processed %d messages, want 20", n)
	}
	if p := sub.peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestNotifier(t *testing.T) {
	bus := newFakeBus()
	n := NewNotifier(bus)
	ctx := context.Background()

	if err := n.NotifyModeration(ctx, moderation.Notification{Event: "enqueued", VerificationID: "VER-1-a"}); err != nil {
		t.Fatalf("NotifyModeration: %v", err)
	}
	if len(bus.events["enqueued"]) != 1 {
		t.Errorf("events = %+v", bus.events)
	}

	err := n.Deliver(ctx, pipeline.Delivery{
		UserPhone: "+232",
		Channel:   "sms",
		Result:    pipeline.Result{VerificationID: "VER-1-a", Verdict: verdict.LabelTrue},
		Reviewed:  true,
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	replies := bus.repliesFor("sms")
	if len(replies) != 1 || !replies[0].Reviewed || !strings.HasPrefix(replies[0].Text, "Update:") {
		t.Errorf("replies = %+v", replies)
	}
}

func TestNotifier_PropagatesBusError(t *testing.T) {
	n := NewNotifier(errBus{})
	if err := n.Deliver(context.Background(), pipeline.Delivery{Channel: "sms"}); err == nil {
		t.Error("Deliver returned nil on bus failure")
	}
}

type errBus struct{}

func (errBus) PublishReply(string, []byte) error           { return errors.New("down") }
func (errBus) PublishModerationEvent(string, []byte) error { return errors.New("down") }
