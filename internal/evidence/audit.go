package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

// Event names recorded in the audit log.
type Event string

const (
	EventVerificationCreated Event = "verification.created"
	EventModerationEnqueued  Event = "moderation.enqueued"
	EventModerationResolved  Event = "moderation.resolved"
)

// ErrChainBroken is returned by VerifyChain when an entry was altered,
// removed or reordered.
var ErrChainBroken = errors.New("evidence: audit chain broken")

// AuditEntry is one append-only audit record. Entries for the same
// verification form a chain: PrevHash is the EntryHash of the entry before.
type AuditEntry struct {
	ID             string          `json:"id"`
	VerificationID string          `json:"verificationId"`
	Event          Event           `json:"event"`
	EvidenceHash   string          `json:"evidenceHash"`
	Payload        json.RawMessage `json:"payload"`
	PrevHash       string          `json:"prevHash"`
	EntryHash      string          `json:"entryHash"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewAuditEntry builds an entry chained onto prevHash ("" for the first
// entry of a verification).
func NewAuditEntry(verificationID string, event Event, evidenceHash string, payload any, prevHash string, now time.Time) (AuditEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("evidence: audit payload: %w", err)
	}
	e := AuditEntry{
		ID:             uuid.NewString(),
		VerificationID: verificationID,
		Event:          event,
		EvidenceHash:   evidenceHash,
		Payload:        raw,
		PrevHash:       prevHash,
		CreatedAt:      now.UTC().Truncate(time.Millisecond),
	}
	e.EntryHash = e.computeHash()
	return e, nil
}

func (e AuditEntry) computeHash() string {
	h := sha256.New()
	for _, part := range []string{
		e.PrevHash,
		e.ID,
		e.VerificationID,
		string(e.Event),
		e.EvidenceHash,
		string(e.Payload),
		strconv.FormatInt(e.CreatedAt.UnixMilli(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Valid reports whether EntryHash matches the entry's contents.
func (e AuditEntry) Valid() bool {
	return e.EntryHash == e.computeHash()
}

// VerifyChain checks entries, oldest first, form an unbroken chain.
func VerifyChain(entries []AuditEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d (%s) does not follow its predecessor", ErrChainBroken, i, e.ID)
		}
		if !e.Valid() {
			return fmt.Errorf("%w: entry %d (%s) was modified", ErrChainBroken, i, e.ID)
		}
		prev = e.EntryHash
	}
	return nil
}
