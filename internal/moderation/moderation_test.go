package moderation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

type fakeSource struct {
	count  int64
	oldest time.Time
	err    error
}

func (f fakeSource) CountPending(context.Context) (int64, error) { return f.count, f.err }

func (f fakeSource) OldestPending(context.Context) (time.Time, bool, error) {
	return f.oldest, !f.oldest.IsZero(), nil
}

type fakeSink struct{ values map[string]int64 }

func (f *fakeSink) Set(_ context.Context, name string, v int64) error {
	f.values[name] = v
	return nil
}

func newTestMonitor(src QueueSource, sink GaugeSink, buf *bytes.Buffer) *Monitor {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	m := NewMonitor(src, sink, time.Second, time.Hour, logger)
	m.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestMonitor_ReconcilesDepth(t *testing.T) {
	var buf bytes.Buffer
	sink := &fakeSink{values: map[string]int64{}}
	m := newTestMonitor(fakeSource{count: 7}, sink, &buf)

	if n := m.Tick(context.Background()); n != 7 {
		t.Errorf("Tick() = %d, want 7", n)
	}
	if sink.values[metrics.MetricQueueDepth] != 7 {
		t.Errorf("sink queue_depth = %d, want 7", sink.values[metrics.MetricQueueDepth])
	}
	if strings.Contains(buf.String(), "SLA exceeded") {
		t.Errorf("unexpected SLA warning: %s", buf.String())
	}
}

func TestMonitor_WarnsOnSLA(t *testing.T) {
	var buf bytes.Buffer
	src := fakeSource{count: 2, oldest: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(src, nil, &buf)

	m.Tick(context.Background())
	if !strings.Contains(buf.String(), "SLA exceeded") {
		t.Errorf("expected SLA warning, got: %s", buf.String())
	}
}

func TestMonitor_SourceError(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMonitor(fakeSource{err: errors.New("db down")}, nil, &buf)
	if n := m.Tick(context.Background()); n != -1 {
		t.Errorf("Tick() = %d, want -1 on error", n)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMonitor(fakeSource{}, nil, &buf)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestResolution_Validate(t *testing.T) {
	tests := []struct {
		name string
		r    Resolution
		ok   bool
	}{
		{"valid", Resolution{Label: verdict.LabelFalse, ResolvedBy: "mod-1", Note: "  fake giveaway  "}, true},
		{"bad label", Resolution{Label: "MAYBE"}, false},
		{"empty label", Resolution{}, false},
		{"long note", Resolution{Label: verdict.LabelTrue, Note: strings.Repeat("x", maxNoteChars+1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && tt.r.Note != "fake giveaway" {
				t.Errorf("Note = %q, want trimmed", tt.r.Note)
			}
		})
	}
}

func TestNewItem(t *testing.T) {
	item := NewItem("VER-1-abc", time.Now())
	if item.Status != StatusPending || item.ID == "" || item.VerificationID != "VER-1-abc" {
		t.Errorf("NewItem = %+v", item)
	}
}
