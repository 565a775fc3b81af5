package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/evidence"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
)

// maxCaseIDAttempts bounds retries when a generated case ID collides.
const maxCaseIDAttempts = 5

// CaseStore persists cases.
type CaseStore interface {
	SaveCaseReport(ctx context.Context, r *CaseReport) error
}

// Incrementer updates the persisted system counters.
type Incrementer interface {
	Increment(ctx context.Context, name string, delta int64) error
}

// Notifier hands a filed case to its agency.
type Notifier interface {
	NotifyAgency(ctx context.Context, agency Agency, r CaseReport) error
}

// Service files case reports.
type Service struct {
	store    CaseStore
	counters Incrementer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a report Service. counters and notifier may be nil.
func NewService(store CaseStore, counters Incrementer, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		counters: counters,
		notifier: notifier,
		logger:   logger.With("component", "report"),
		now:      time.Now,
	}
}

// FileReport validates a filing, assigns a case ID and agency, persists the
// case and counts it. Agency hand-off is best effort.
func (s *Service) FileReport(ctx context.Context, f Filing) (*CaseReport, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	agency := AgencyFor(f.IncidentType)
	now := s.now().UTC()
	r := &CaseReport{
		IncidentType:   f.IncidentType,
		Description:    f.Description,
		AmountLost:     f.AmountLost,
		VictimPhone:    f.VictimPhone,
		AssignedAgency: agency.Name,
		Status:         StatusOpen,
		CreatedAt:      now.Truncate(time.Microsecond),
	}

	var err error
	for attempt := 0; attempt < maxCaseIDAttempts; attempt++ {
		r.CaseID, err = evidence.NewCaseID(now)
		if err != nil {
			return nil, err
		}
		err = s.store.SaveCaseReport(ctx, r)
		if !errors.Is(err, ErrDuplicateCase) {
			break
		}
		s.logger.Warn("case id collision", "case_id", r.CaseID, "attempt", attempt+1)
	}
	if err != nil {
		return nil, fmt.Errorf("report: save: %w", err)
	}

	metrics.CaseReportsTotal.WithLabelValues(agency.Slug).Inc()
	if s.counters != nil {
		if err := s.counters.Increment(ctx, metrics.MetricTotalReports, 1); err != nil {
			s.logger.Error("failed to increment report counter", "case_id", r.CaseID, "error", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyAgency(ctx, agency, *r); err != nil {
			s.logger.Error("failed to notify agency", "case_id", r.CaseID, "agency", agency.Slug, "error", err)
		}
	}

	s.logger.Info("case report filed",
		"case_id", r.CaseID,
		"incident_type", r.IncidentType,
		"agency", agency.Slug,
	)
	return r, nil
}
