package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/database"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/evidence"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

// Store manages verifications, the moderation queue and the audit log in
// PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveVerification writes the verification, its creation audit entry and,
// when item is non-nil, the moderation queue item with its own audit entry,
// all in one transaction. Saving a verification that is already stored with
// the same evidence hash writes nothing and succeeds; a different hash under
// the same ID returns ErrDuplicateID.
func (s *Store) SaveVerification(ctx context.Context, v *Verification, item *moderation.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verification: begin: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertVerification(ctx, tx, v)
	if err != nil {
		return err
	}
	if !inserted {
		return sameEvidence(ctx, tx, v)
	}

	entry, err := createdEntry(v)
	if err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if item != nil {
		if err := enqueue(ctx, tx, *item, v.EvidenceHash, entry.EntryHash, s.now()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verification: commit: %w", err)
	}
	return nil
}

// EnqueueModeration adds a pending item for an already persisted
// verification. It returns moderation.ErrAlreadyPending if one exists.
func (s *Store) EnqueueModeration(ctx context.Context, item moderation.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verification: begin: %w", err)
	}
	defer tx.Rollback()

	prev, evidenceHash, err := lastAudit(ctx, tx, item.VerificationID)
	if err != nil {
		return err
	}
	if err := enqueue(ctx, tx, item, evidenceHash, prev, s.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verification: commit: %w", err)
	}
	return nil
}

// ResolveModeration closes the pending item for a verification and appends
// a resolution audit entry. It returns moderation.ErrNotPending when there is
// nothing to resolve.
func (s *Store) ResolveModeration(ctx context.Context, verificationID string, r moderation.Resolution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verification: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	const query = `
		UPDATE moderation_queue
		SET status = 'resolved', resolved_at = $2, resolved_label = $3, resolved_by = $4, note = $5
		WHERE verification_id = $1 AND status = 'pending'`

	res, err := tx.ExecContext(ctx, query, verificationID, now, string(r.Label), r.ResolvedBy, r.Note)
	if err != nil {
		return fmt.Errorf("verification: resolve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification: resolve rows: %w", err)
	}
	if n == 0 {
		return moderation.ErrNotPending
	}

	prev, evidenceHash, err := lastAudit(ctx, tx, verificationID)
	if err != nil {
		return err
	}
	entry, err := evidence.NewAuditEntry(verificationID, evidence.EventModerationResolved, evidenceHash,
		resolvedPayload{Label: r.Label, ResolvedBy: r.ResolvedBy, Note: r.Note}, prev, now)
	if err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verification: commit: %w", err)
	}
	return nil
}

// Get loads one verification.
func (s *Store) Get(ctx context.Context, id string) (*Verification, error) {
	const query = `
		SELECT id, user_phone, channel, language, content_kind, content_text, content_caption,
		       label, confidence, risk_level, reasons, sources, detected_patterns,
		       decision, evidence_hash, received_at, created_at
		FROM verifications
		WHERE id = $1`

	v, err := scanVerification(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verification: get: %w", err)
	}
	return v, nil
}

// PendingModeration lists pending items, oldest first.
func (s *Store) PendingModeration(ctx context.Context, limit int) ([]moderation.Pending, error) {
	const query = `
		SELECT v.id, v.channel, v.language, v.content_kind, v.content_text, v.content_caption,
		       v.label, v.confidence, v.risk_level, v.reasons, v.sources, v.detected_patterns,
		       q.enqueued_at
		FROM moderation_queue q
		JOIN verifications v ON v.id = q.verification_id
		WHERE q.status = 'pending'
		ORDER BY q.enqueued_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("verification: list pending: %w", err)
	}
	defer rows.Close()

	pending := []moderation.Pending{}
	for rows.Next() {
		var (
			p                         moderation.Pending
			kind, label, risk         string
			reasons, sources, pattern []byte
		)
		if err := rows.Scan(&p.VerificationID, &p.Channel, &p.Language, &kind, &p.Content.Text, &p.Content.Caption,
			&label, &p.Verdict.Confidence, &risk, &reasons, &sources, &pattern, &p.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("verification: scan pending: %w", err)
		}
		p.Content.Kind = content.Kind(kind)
		p.Verdict.Label = verdict.Label(label)
		p.Verdict.RiskLevel = verdict.RiskLevel(risk)
		if err := decodeLists(&p.Verdict, reasons, sources, pattern); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verification: list pending: %w", err)
	}
	return pending, nil
}

// CountPending returns the number of pending moderation items.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderation_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("verification: count pending: %w", err)
	}
	return n, nil
}

// OldestPending returns the enqueue time of the oldest pending item.
func (s *Store) OldestPending(ctx context.Context) (time.Time, bool, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MIN(enqueued_at) FROM moderation_queue WHERE status = 'pending'`).Scan(&t)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("verification: oldest pending: %w", err)
	}
	return t.Time, t.Valid, nil
}

// AuditTrail returns the audit entries of a verification, oldest first.
func (s *Store) AuditTrail(ctx context.Context, verificationID string) ([]evidence.AuditEntry, error) {
	const query = `
		SELECT id, verification_id, event, evidence_hash, payload, prev_hash, entry_hash, created_at
		FROM audit_log
		WHERE verification_id = $1
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, verificationID)
	if err != nil {
		return nil, fmt.Errorf("verification: audit trail: %w", err)
	}
	defer rows.Close()

	var entries []evidence.AuditEntry
	for rows.Next() {
		var (
			e       evidence.AuditEntry
			event   string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.VerificationID, &event, &e.EvidenceHash, &payload, &e.PrevHash, &e.EntryHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("verification: scan audit: %w", err)
		}
		e.Event = evidence.Event(event)
		e.Payload = []byte(payload)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verification: audit trail: %w", err)
	}
	return entries, nil
}

// insertVerification inserts v and reports whether a row was written. It
// writes nothing when the ID already exists.
func insertVerification(ctx context.Context, db execer, v *Verification) (bool, error) {
	reasons, err := json.Marshal(v.Verdict.Reasons)
	if err != nil {
		return false, fmt.Errorf("verification: marshal reasons: %w", err)
	}
	sources, err := json.Marshal(v.Verdict.Sources)
	if err != nil {
		return false, fmt.Errorf("verification: marshal sources: %w", err)
	}
	patterns, err := json.Marshal(v.Verdict.DetectedPatterns)
	if err != nil {
		return false, fmt.Errorf("verification: marshal patterns: %w", err)
	}

	const query = `
		INSERT INTO verifications (id, user_phone, channel, language, content_kind, content_text, content_caption,
		                           label, confidence, risk_level, reasons, sources, detected_patterns,
		                           decision, evidence_hash, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING`

	res, err := db.ExecContext(ctx, query,
		v.ID, v.UserPhone, v.Channel, v.Language,
		string(v.Content.Kind), v.Content.Text, v.Content.Caption,
		string(v.Verdict.Label), v.Verdict.Confidence, string(v.Verdict.RiskLevel),
		reasons, sources, patterns,
		string(v.Decision), v.EvidenceHash, v.ReceivedAt.UTC(), v.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("verification: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("verification: insert rows: %w", err)
	}
	return n == 1, nil
}

// sameEvidence checks that the stored row with v's ID carries v's evidence
// hash.
func sameEvidence(ctx context.Context, db execer, v *Verification) error {
	var stored string
	err := db.QueryRowContext(ctx, `SELECT evidence_hash FROM verifications WHERE id = $1`, v.ID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("verification: load existing: %w", err)
	}
	if stored != v.EvidenceHash {
		return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
	}
	return nil
}

func insertAudit(ctx context.Context, db execer, e evidence.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (id, verification_id, event, evidence_hash, payload, prev_hash, entry_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		e.ID, e.VerificationID, string(e.Event), e.EvidenceHash, string(e.Payload), e.PrevHash, e.EntryHash, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("verification: insert audit: %w", err)
	}
	return nil
}

func enqueue(ctx context.Context, db execer, item moderation.Item, evidenceHash, prevHash string, now time.Time) error {
	const query = `
		INSERT INTO moderation_queue (id, verification_id, status, enqueued_at)
		VALUES ($1, $2, 'pending', $3)`

	if _, err := db.ExecContext(ctx, query, item.ID, item.VerificationID, item.EnqueuedAt.UTC()); err != nil {
		if database.IsUniqueViolation(err) {
			return moderation.ErrAlreadyPending
		}
		return fmt.Errorf("verification: enqueue: %w", err)
	}

	entry, err := evidence.NewAuditEntry(item.VerificationID, evidence.EventModerationEnqueued, evidenceHash,
		enqueuedPayload{ItemID: item.ID}, prevHash, now)
	if err != nil {
		return err
	}
	return insertAudit(ctx, db, entry)
}

// lastAudit locks and returns the newest audit entry hash for a
// verification so appends to one chain are serialized.
func lastAudit(ctx context.Context, db execer, verificationID string) (string, string, error) {
	const query = `
		SELECT entry_hash, evidence_hash
		FROM audit_log
		WHERE verification_id = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE`

	var entryHash, evidenceHash string
	err := db.QueryRowContext(ctx, query, verificationID).Scan(&entryHash, &evidenceHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("verification: last audit: %w", err)
	}
	return entryHash, evidenceHash, nil
}

func scanVerification(row *sql.Row) (*Verification, error) {
	var (
		v                          Verification
		kind, label, risk, decided string
		reasons, sources, patterns []byte
	)
	err := row.Scan(&v.ID, &v.UserPhone, &v.Channel, &v.Language, &kind, &v.Content.Text, &v.Content.Caption,
		&label, &v.Verdict.Confidence, &risk, &reasons, &sources, &patterns,
		&decided, &v.EvidenceHash, &v.ReceivedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Content.Kind = content.Kind(kind)
	v.Verdict.Label = verdict.Label(label)
	v.Verdict.RiskLevel = verdict.RiskLevel(risk)
	v.Decision = routing.Decision(decided)
	if err := decodeLists(&v.Verdict, reasons, sources, patterns); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeLists(vd *verdict.Verdict, reasons, sources, patterns []byte) error {
	if err := json.Unmarshal(reasons, &vd.Reasons); err != nil {
		return fmt.Errorf("verification: decode reasons: %w", err)
	}
	if err := json.Unmarshal(sources, &vd.Sources); err != nil {
		return fmt.Errorf("verification: decode sources: %w", err)
	}
	if err := json.Unmarshal(patterns, &vd.DetectedPatterns); err != nil {
		return fmt.Errorf("verification: decode patterns: %w", err)
	}
	return nil
}
