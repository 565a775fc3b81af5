// Package intake consumes channel messages from NATS, runs them through the
// verification pipeline and publishes the replies channel adapters deliver
// to citizens.
package intake

import (
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
)

// InboundMessage is published by a channel adapter on verify.inbound.
type InboundMessage struct {
	ID         string          `json:"id,omitempty"` // adapter message ID
	Channel    string          `json:"channel"`
	From       string          `json:"from"` // sender phone number or web session
	Language   string          `json:"language,omitempty"`
	Payload    content.Payload `json:"payload"`
	ReceivedAt int64           `json:"receivedAt,omitempty"` // epoch millis
}

func (m InboundMessage) receivedAt() time.Time {
	if m.ReceivedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.ReceivedAt)
}

// Ack statuses.
const (
	AckOK       = "ok"
	AckRetry    = "retry"    // redeliver later
	AckRejected = "rejected" // do not redeliver
)

// Ack answers a request-reply inbound message.
type Ack struct {
	Status         string `json:"status"`
	VerificationID string `json:"verificationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Outbound is published on verify.reply.<channel> for the adapter to send.
type Outbound struct {
	To        string           `json:"to"`
	Channel   string           `json:"channel"`
	Language  string           `json:"language"`
	InReplyTo string           `json:"inReplyTo,omitempty"`
	Text      string           `json:"text"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Reviewed  bool             `json:"reviewed,omitempty"`
}
