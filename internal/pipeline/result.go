package pipeline

import (
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

// Channels a submission can arrive on.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelWeb      = "web"
	ChannelAPI      = "api"
)

// DefaultLanguage is assumed when a submission names none.
const DefaultLanguage = "en"

// Request is one inbound message to verify.
type Request struct {
	Content    content.Content
	UserPhone  string
	Channel    string
	Language   string
	ReceivedAt time.Time // zero means now
}

// Result is returned to the channel that submitted a message.
type Result struct {
	VerificationID   string             `json:"verificationId"`
	Verdict          verdict.Label      `json:"verdict"`
	Confidence       float64            `json:"confidence"`
	Reasoning        []string           `json:"reasoning"`
	Sources          []detection.Source `json:"sources"`
	DetectedPatterns []string           `json:"detectedPatterns"`
	RiskLevel        verdict.RiskLevel  `json:"riskLevel"`
	Timestamp        time.Time          `json:"timestamp"`

	// PendingReview is set when the verdict was held for a moderator and
	// must not be presented to the citizen as final.
	PendingReview bool `json:"pendingReview"`
	// Provisional is set for released verdicts between the human review
	// and auto-reply thresholds.
	Provisional bool `json:"provisional,omitempty"`
	// Unsupported is set when the content type could not be analyzed.
	Unsupported bool `json:"unsupported,omitempty"`
}

func resultFrom(id string, v verdict.Verdict, ts time.Time) Result {
	return Result{
		VerificationID:   id,
		Verdict:          v.Label,
		Confidence:       v.Confidence,
		Reasoning:        v.Reasons,
		Sources:          v.Sources,
		DetectedPatterns: v.DetectedPatterns,
		RiskLevel:        v.RiskLevel,
		Timestamp:        ts,
	}
}

// Delivery is a verdict addressed back to the citizen who asked for it,
// published when a moderator resolves a held verification.
type Delivery struct {
	UserPhone string `json:"userPhone"`
	Channel   string `json:"channel"`
	Language  string `json:"language"`
	Result    Result `json:"result"`
	Reviewed  bool   `json:"reviewed"`
}
