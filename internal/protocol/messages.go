// Package protocol defines the web chat WebSocket messages exchanged between
// a citizen's browser and the verifier. All messages are JSON and carry a
// "type" discriminator.
package protocol

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Message type constants
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

// Error codes carried by ErrorMsg.
const (
	CodeBadMessage  = "bad_message"
	CodeInvalid     = "invalid_input"
	CodeUnavailable = "unavailable"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field so
// the rest of the payload can be decoded into the matching struct later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// VerifyMsg asks for a verdict on a message the citizen received.
type VerifyMsg struct {
	Type     string          `json:"type"`
	Language string          `json:"language,omitempty"`
	Payload  content.Payload `json:"payload"`
}

// ReportMsg files a scam case from the chat.
type ReportMsg struct {
	Type         string   `json:"type"`
	IncidentType string   `json:"incident_type"`
	Phone        string   `json:"phone"`
	Description  string   `json:"description"`
	AmountLost   *float64 `json:"amount_lost,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent when a connection is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// VerdictMsg carries a released verdict, or a reviewed one when sent with
// TypeReviewed.
type VerdictMsg struct {
	Type   string          `json:"type"`
	Text   string          `json:"text"`
	Result pipeline.Result `json:"result"`
}

// PendingReviewMsg tells the citizen a moderator will answer later.
type PendingReviewMsg struct {
	Type           string `json:"type"`
	VerificationID string `json:"verification_id"`
	Text           string `json:"text"`
}

// ReportFiledMsg confirms a case report.
type ReportFiledMsg struct {
	Type           string `json:"type"`
	CaseID         string `json:"case_id"`
	AssignedAgency string `json:"assigned_agency"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// An error is returned for unknown or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeVerify:
		var m VerifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage marshals payload and sets its "type" field to msgType.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
