package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/database"
)

// Store manages case reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveCaseReport inserts a case. A taken case ID yields ErrDuplicateCase.
func (s *Store) SaveCaseReport(ctx context.Context, r *CaseReport) error {
	const query = `
		INSERT INTO case_reports (case_id, incident_type, description, amount_lost, victim_phone, assigned_agency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var amount sql.NullFloat64
	if r.AmountLost != nil {
		amount = sql.NullFloat64{Float64: *r.AmountLost, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		r.CaseID,
		r.IncidentType,
		r.Description,
		amount,
		r.VictimPhone,
		r.AssignedAgency,
		string(r.Status),
		r.CreatedAt,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateCase
	}
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// Get loads a case by ID.
func (s *Store) Get(ctx context.Context, caseID string) (*CaseReport, error) {
	const query = `
		SELECT case_id, incident_type, description, amount_lost, victim_phone, assigned_agency, status, created_at
		FROM case_reports
		WHERE case_id = $1`

	var (
		r      CaseReport
		amount sql.NullFloat64
		status string
	)
	err := s.db.QueryRowContext(ctx, query, caseID).Scan(
		&r.CaseID, &r.IncidentType, &r.Description, &amount,
		&r.VictimPhone, &r.AssignedAgency, &status, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report: get: %w", err)
	}
	if amount.Valid {
		r.AmountLost = &amount.Float64
	}
	r.Status = Status(status)
	return &r, nil
}

// CountOpen returns the number of open cases assigned to an agency.
func (s *Store) CountOpen(ctx context.Context, agency string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM case_reports
		WHERE assigned_agency = $1
		  AND status = 'open'`

	var count int
	if err := s.db.QueryRowContext(ctx, query, agency).Scan(&count); err != nil {
		return 0, fmt.Errorf("report: count open: %w", err)
	}
	return count, nil
}

// MemoryStore keeps cases in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]CaseReport
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]CaseReport)}
}

func (m *MemoryStore) SaveCaseReport(_ context.Context, r *CaseReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[r.CaseID]; ok {
		return ErrDuplicateCase
	}
	m.cases[r.CaseID] = *r
	return nil
}

func (m *MemoryStore) Get(_ context.Context, caseID string) (*CaseReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.cases[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) CountOpen(_ context.Context, agency string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.cases {
		if r.AssignedAgency == agency && r.Status == StatusOpen {
			n++
		}
	}
	return n, nil
}
