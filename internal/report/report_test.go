package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
)

var caseIDPattern = regexp.MustCompile(`^SL-\d{8}-\d{4}$`)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func amount(v float64) *float64 { return &v }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Agency
	err   error
}

func (n *recordingNotifier) NotifyAgency(_ context.Context, a Agency, _ CaseReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, a)
	return n.err
}

// collidingStore rejects the first n saves as duplicates.
type collidingStore struct {
	*MemoryStore
	collisions int
	attempts   int
}

func (c *collidingStore) SaveCaseReport(ctx context.Context, r *CaseReport) error {
	c.attempts++
	if c.attempts <= c.collisions {
		return ErrDuplicateCase
	}
	return c.MemoryStore.SaveCaseReport(ctx, r)
}

func TestFilingValidate(t *testing.T) {
	tests := []struct {
		name    string
		filing  Filing
		wantErr bool
	}{
		{"valid", Filing{IncidentType: "phishing", VictimPhone: "+23276", Description: "fake link"}, false},
		{"valid with amount", Filing{IncidentType: "investment", VictimPhone: "+23276", Description: "ponzi", AmountLost: amount(500000)}, false},
		{"zero amount", Filing{IncidentType: "investment", VictimPhone: "+23276", Description: "ponzi", AmountLost: amount(0)}, false},
		{"blank incident", Filing{IncidentType: "  ", VictimPhone: "+23276", Description: "x"}, true},
		{"blank description", Filing{IncidentType: "phishing", VictimPhone: "+23276", Description: "\t"}, true},
		{"missing phone", Filing{IncidentType: "phishing", Description: "x"}, true},
		{"negative amount", Filing{IncidentType: "phishing", VictimPhone: "+23276", Description: "x", AmountLost: amount(-1)}, true},
		{"description too long", Filing{IncidentType: "phishing", VictimPhone: "+23276", Description: strings.Repeat("a", MaxDescriptionChars+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filing.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidReport) {
				t.Errorf("error %v does not wrap ErrInvalidReport", err)
			}
		})
	}
}

func TestAgencyFor(t *testing.T) {
	tests := map[string]string{
		"mobile_money_fraud":    "Bank of Sierra Leone",
		"Mobile Money Fraud":    "Bank of Sierra Leone",
		"investment":            "Bank of Sierra Leone",
		"impersonation":         "Sierra Leone Police CID",
		"phishing":              "National Cybersecurity Coordination Centre",
		"health_misinformation": "Ministry of Health and Sanitation",
		"romance":               "Sierra Leone Police",
		"":                      "Sierra Leone Police",
	}
	for incident, want := range tests {
		if got := AgencyFor(incident).Name; got != want {
			t.Errorf("AgencyFor(%q) = %q, want %q", incident, got, want)
		}
	}
}

func TestFileReport(t *testing.T) {
	store := NewMemoryStore()
	counters := metrics.NewMemoryCounter()
	notifier := &recordingNotifier{}
	svc := NewService(store, counters, notifier, testLogger())
	ctx := context.Background()

	r, err := svc.FileReport(ctx, Filing{
		IncidentType: " Mobile_Money_Fraud ",
		VictimPhone:  "+23276123456",
		Description:  "Sent Le 200,000 to a fake agent",
		AmountLost:   amount(200000),
	})
	if err != nil {
		t.Fatalf("FileReport: %v", err)
	}
	if !caseIDPattern.MatchString(r.CaseID) {
		t.Errorf("CaseID = %q, want SL-<yyyymmdd>-<4 digits>", r.CaseID)
	}
	if r.Status != StatusOpen {
		t.Errorf("Status = %s, want open", r.Status)
	}
	if r.AssignedAgency != "Bank of Sierra Leone" {
		t.Errorf("AssignedAgency = %q", r.AssignedAgency)
	}
	if r.IncidentType != "mobile_money_fraud" {
		t.Errorf("IncidentType = %q, want trimmed lower case", r.IncidentType)
	}

	stored, err := store.Get(ctx, r.CaseID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.AmountLost == nil || *stored.AmountLost != 200000 {
		t.Errorf("stored AmountLost = %v", stored.AmountLost)
	}

	snap, _ := counters.Snapshot(ctx)
	if snap.TotalReports != 1 {
		t.Errorf("TotalReports = %d, want 1", snap.TotalReports)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].Slug != "bsl" {
		t.Errorf("notifier calls = %+v", notifier.calls)
	}
}

func TestFileReport_InvalidNotPersisted(t *testing.T) {
	store := NewMemoryStore()
	counters := metrics.NewMemoryCounter()
	svc := NewService(store, counters, nil, testLogger())

	_, err := svc.FileReport(context.Background(), Filing{IncidentType: "phishing", VictimPhone: "+232"})
	if !errors.Is(err, ErrInvalidReport) {
		t.Fatalf("error = %v, want ErrInvalidReport", err)
	}
	if n := len(store.cases); n != 0 {
		t.Errorf("%d cases stored, want 0", n)
	}
	if snap, _ := counters.Snapshot(context.Background()); snap.TotalReports != 0 {
		t.Errorf("TotalReports = %d, want 0", snap.TotalReports)
	}
}

func TestFileReport_RetriesCaseIDCollision(t *testing.T) {
	store := &collidingStore{MemoryStore: NewMemoryStore(), collisions: 2}
	svc := NewService(store, nil, nil, testLogger())

	r, err := svc.FileReport(context.Background(), Filing{IncidentType: "phishing", VictimPhone: "+232", Description: "x"})
	if err != nil {
		t.Fatalf("FileReport: %v", err)
	}
	if store.attempts != 3 {
		t.Errorf("attempts = %d, want 3", store.attempts)
	}
	if _, err := store.Get(context.Background(), r.CaseID); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestFileReport_GivesUpAfterCollisions(t *testing.T) {
	store := &collidingStore{MemoryStore: NewMemoryStore(), collisions: maxCaseIDAttempts}
	svc := NewService(store, nil, nil, testLogger())

	_, err := svc.FileReport(context.Background(), Filing{IncidentType: "phishing", VictimPhone: "+232", Description: "x"})
	if !errors.Is(err, ErrDuplicateCase) {
		t.Errorf("error = %v, want ErrDuplicateCase", err)
	}
}

func TestFileReport_NotifierFailureIsBestEffort(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := NewService(NewMemoryStore(), nil, notifier, testLogger())

	if _, err := svc.FileReport(context.Background(), Filing{IncidentType: "cyber", VictimPhone: "+232", Description: "x"}); err != nil {
		t.Fatalf("FileReport returned %v, want nil when agency hand-off fails", err)
	}
}

func TestMemoryStore_CountOpen(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil, testLogger())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.FileReport(ctx, Filing{IncidentType: "impersonation", VictimPhone: "+232", Description: "x"}); err != nil {
			t.Fatalf("FileReport: %v", err)
		}
	}
	n, _ := store.CountOpen(ctx, "Sierra Leone Police CID")
	if n != 3 {
		t.Errorf("CountOpen = %d, want 3", n)
	}
}
