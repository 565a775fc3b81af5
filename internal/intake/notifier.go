package intake

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
)

// ReplyBus publishes to channel adapters and moderation dashboards.
type ReplyBus interface {
	PublishReply(channel string, data []byte) error
	PublishModerationEvent(event string, data []byte) error
}

// Notifier publishes pipeline events over a ReplyBus.
type Notifier struct {
	bus ReplyBus
}

// NewNotifier creates a Notifier.
func NewNotifier(bus ReplyBus) *Notifier {
	return &Notifier{bus: bus}
}

// NotifyModeration publishes a moderation queue event.
func (n *Notifier) NotifyModeration(_ context.Context, ev moderation.Notification) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("intake: marshal notification: %w", err)
	}
	return n.bus.PublishModerationEvent(ev.Event, data)
}

// Deliver publishes a reviewed verdict to the citizen's channel.
func (n *Notifier) Deliver(_ context.Context, d pipeline.Delivery) error {
	res := d.Result
	return n.publish(Outbound{
		To:       d.UserPhone,
		Channel:  d.Channel,
		Language: d.Language,
		Text:     FormatReply(res, d.Reviewed),
		Result:   &res,
		Reviewed: d.Reviewed,
	})
}

func (n *Notifier) publish(out Outbound) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("intake: marshal reply: %w", err)
	}
	return n.bus.PublishReply(out.Channel, data)
}
