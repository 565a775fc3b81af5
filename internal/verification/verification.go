// Package verification persists verification records together with their
// audit trail and moderation queue items. The PostgreSQL Store is the
// production implementation; MemoryStore backs tests and offline runs.
package verification

import (
	"errors"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/evidence"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

var (
	// ErrNotFound is returned when no verification has the requested ID.
	ErrNotFound = errors.New("verification: not found")

	// ErrDuplicateID is returned when a verification ID is already stored
	// with a different evidence hash.
	ErrDuplicateID = errors.New("verification: id already used by other content")
)

// Verification is the persisted unit of work for one inbound message. It is
// never updated after creation; moderation outcomes live on the queue item
// and in the audit log.
type Verification struct {
	ID           string           `json:"id"`
	UserPhone    string           `json:"userPhone"`
	Channel      string           `json:"channel"`
	Language     string           `json:"language"`
	Content      content.Content  `json:"content"`
	Verdict      verdict.Verdict  `json:"verdict"`
	Decision     routing.Decision `json:"decision"`
	EvidenceHash string           `json:"evidenceHash"`
	ReceivedAt   time.Time        `json:"receivedAt"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// auditPayload is the snapshot written into the verification.created entry.
type auditPayload struct {
	Label      verdict.Label     `json:"label"`
	Confidence float64           `json:"confidence"`
	RiskLevel  verdict.RiskLevel `json:"riskLevel"`
	Decision   routing.Decision  `json:"decision"`
	Patterns   []string          `json:"detectedPatterns"`
	ReceivedAt int64             `json:"receivedAt"`
}

func createdEntry(v *Verification) (evidence.AuditEntry, error) {
	return evidence.NewAuditEntry(v.ID, evidence.EventVerificationCreated, v.EvidenceHash, auditPayload{
		Label:      v.Verdict.Label,
		Confidence: v.Verdict.Confidence,
		RiskLevel:  v.Verdict.RiskLevel,
		Decision:   v.Decision,
		Patterns:   v.Verdict.DetectedPatterns,
		ReceivedAt: v.ReceivedAt.UnixMilli(),
	}, "", v.CreatedAt)
}

type enqueuedPayload struct {
	ItemID string `json:"itemId"`
}

type resolvedPayload struct {
	Label      verdict.Label `json:"label"`
	ResolvedBy string        `json:"resolvedBy"`
	Note       string        `json:"note,omitempty"`
}
