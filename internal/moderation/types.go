// Package moderation models the human review queue: queue items, the view
// moderators work from, resolutions, and the notifications published when
// the queue changes.
package moderation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

// Status of a queue item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

var (
	// ErrAlreadyPending is returned when a verification already has a
	// pending item.
	ErrAlreadyPending = errors.New("moderation: verification already pending review")

	// ErrNotPending is returned when resolving a verification with no
	// pending item.
	ErrNotPending = errors.New("moderation: no pending item for verification")
)

const maxNoteChars = 1000

// Item is one entry in the moderation queue.
type Item struct {
	ID             string        `json:"id"`
	VerificationID string        `json:"verificationId"`
	Status         Status        `json:"status"`
	EnqueuedAt     time.Time     `json:"enqueuedAt"`
	ResolvedAt     *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedLabel  verdict.Label `json:"resolvedLabel,omitempty"`
	ResolvedBy     string        `json:"resolvedBy,omitempty"`
	Note           string        `json:"note,omitempty"`
}

// NewItem creates a pending item for a verification.
func NewItem(verificationID string, now time.Time) Item {
	return Item{
		ID:             uuid.NewString(),
		VerificationID: verificationID,
		Status:         StatusPending,
		EnqueuedAt:     now.UTC(),
	}
}

// Pending is what a moderator sees for one queued verification: the content
// and the verdict computed so far.
type Pending struct {
	VerificationID string          `json:"verificationId"`
	Channel        string          `json:"channel"`
	Language       string          `json:"language"`
	Content        content.Content `json:"content"`
	Verdict        verdict.Verdict `json:"verdict"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
}

// Resolution is a moderator's final verdict.
type Resolution struct {
	Label      verdict.Label `json:"label"`
	ResolvedBy string        `json:"resolvedBy"`
	Note       string        `json:"note,omitempty"`
}

// Validate checks the label and trims the note.
func (r *Resolution) Validate() error {
	if _, err := verdict.ParseLabel(string(r.Label)); err != nil {
		return fmt.Errorf("moderation: %w", err)
	}
	r.Note = strings.TrimSpace(r.Note)
	if len([]rune(r.Note)) > maxNoteChars {
		return fmt.Errorf("moderation: note exceeds %d characters", maxNoteChars)
	}
	return nil
}

// Notification is published when an item is enqueued or resolved.
type Notification struct {
	Event          string        `json:"event"` // "enqueued" or "resolved"
	VerificationID string        `json:"verification_id"`
	Label          verdict.Label `json:"label"`
	Confidence     float64       `json:"confidence"`
	Ts             int64         `json:"ts"`
}
