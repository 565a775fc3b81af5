package verification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/evidence"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
)

// MemoryStore keeps everything in process memory. It enforces the same
// invariants as Store: one pending item per verification and an unbroken
// audit chain.
type MemoryStore struct {
	mu            sync.RWMutex
	verifications map[string]*Verification
	items         map[string][]*moderation.Item // by verification ID, oldest first
	audit         map[string][]evidence.AuditEntry
	now           func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		verifications: make(map[string]*Verification),
		items:         make(map[string][]*moderation.Item),
		audit:         make(map[string][]evidence.AuditEntry),
		now:           time.Now,
	}
}

func (m *MemoryStore) SaveVerification(_ context.Context, v *Verification, item *moderation.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Saving the same verification twice is a no-op so that a write
	// retried after a lost acknowledgement succeeds.
	if existing, exists := m.verifications[v.ID]; exists {
		if existing.EvidenceHash == v.EvidenceHash {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
	}
	entry, err := createdEntry(v)
	if err != nil {
		return err
	}
	trail := []evidence.AuditEntry{entry}

	if item != nil {
		if m.hasPending(v.ID) {
			return moderation.ErrAlreadyPending
		}
		enq, err := evidence.NewAuditEntry(v.ID, evidence.EventModerationEnqueued, v.EvidenceHash,
			enqueuedPayload{ItemID: item.ID}, entry.EntryHash, m.now())
		if err != nil {
			return err
		}
		trail = append(trail, enq)
		stored := *item
		m.items[v.ID] = append(m.items[v.ID], &stored)
	}

	stored := *v
	m.verifications[v.ID] = &stored
	m.audit[v.ID] = trail
	return nil
}

func (m *MemoryStore) EnqueueModeration(_ context.Context, item moderation.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifications[item.VerificationID]
	if !ok {
		return ErrNotFound
	}
	if m.hasPending(v.ID) {
		return moderation.ErrAlreadyPending
	}
	if err := m.appendAudit(v, evidence.EventModerationEnqueued, enqueuedPayload{ItemID: item.ID}); err != nil {
		return err
	}
	stored := item
	m.items[v.ID] = append(m.items[v.ID], &stored)
	return nil
}

func (m *MemoryStore) ResolveModeration(_ context.Context, verificationID string, r moderation.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.pendingItem(verificationID)
	if item == nil {
		return moderation.ErrNotPending
	}
	now := m.now().UTC()
	if err := m.appendAudit(m.verifications[verificationID], evidence.EventModerationResolved,
		resolvedPayload{Label: r.Label, ResolvedBy: r.ResolvedBy, Note: r.Note}); err != nil {
		return err
	}
	item.Status = moderation.StatusResolved
	item.ResolvedAt = &now
	item.ResolvedLabel = r.Label
	item.ResolvedBy = r.ResolvedBy
	item.Note = r.Note
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

func (m *MemoryStore) PendingModeration(_ context.Context, limit int) ([]moderation.Pending, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := []moderation.Pending{}
	for id := range m.items {
		item := m.pendingItem(id)
		if item == nil {
			continue
		}
		v := m.verifications[id]
		pending = append(pending, moderation.Pending{
			VerificationID: id,
			Channel:        v.Channel,
			Language:       v.Language,
			Content:        v.Content,
			Verdict:        v.Verdict,
			EnqueuedAt:     item.EnqueuedAt,
		})
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].VerificationID < pending[j].VerificationID
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) CountPending(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for id := range m.items {
		if m.pendingItem(id) != nil {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) OldestPending(_ context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var oldest time.Time
	found := false
	for id := range m.items {
		item := m.pendingItem(id)
		if item == nil {
			continue
		}
		if !found || item.EnqueuedAt.Before(oldest) {
			oldest = item.EnqueuedAt
			found = true
		}
	}
	return oldest, found, nil
}

func (m *MemoryStore) AuditTrail(_ context.Context, verificationID string) ([]evidence.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]evidence.AuditEntry(nil), m.audit[verificationID]...), nil
}

// Items returns every queue item of a verification, oldest first.
func (m *MemoryStore) Items(verificationID string) []moderation.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]moderation.Item, 0, len(m.items[verificationID]))
	for _, it := range m.items[verificationID] {
		out = append(out, *it)
	}
	return out
}

// Len returns the number of stored verifications.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.verifications)
}

func (m *MemoryStore) hasPending(id string) bool {
	return m.pendingItem(id) != nil
}

func (m *MemoryStore) pendingItem(id string) *moderation.Item {
	for _, it := range m.items[id] {
		if it.Status == moderation.StatusPending {
			return it
		}
	}
	return nil
}

func (m *MemoryStore) appendAudit(v *Verification, event evidence.Event, payload any) error {
	trail := m.audit[v.ID]
	prev := ""
	if len(trail) > 0 {
		prev = trail[len(trail)-1].EntryHash
	}
	entry, err := evidence.NewAuditEntry(v.ID, event, v.EvidenceHash, payload, prev, m.now())
	if err != nil {
		return err
	}
	m.audit[v.ID] = append(trail, entry)
	return nil
}
