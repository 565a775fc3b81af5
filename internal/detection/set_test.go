package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

type stubDetector struct {
	name  string
	res   Result
	err   error
	panic bool
	delay time.Duration
}

func (s stubDetector) Name() string { return s.name }

func (s stubDetector) Detect(_ context.Context, _ content.Content) (Result, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panic {
		panic("boom")
	}
	return s.res, s.err
}

func TestSet_PreservesRegistrationOrder(t *testing.T) {
	set := NewSet(nil,
		stubDetector{name: "slow", delay: 20 * time.Millisecond, res: Result{Indicator: IndicatorScam, Confidence: 0.8}},
		stubDetector{name: "fast", res: Result{Indicator: IndicatorManipulation, Confidence: 0.8}},
	)

	results := set.Run(context.Background(), content.Text("x"))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Detector != "slow" || results[1].Detector != "fast" {
		t.Errorf("order = [%s %s], want [slow fast]", results[0].Detector, results[1].Detector)
	}
}

func TestSet_RecoversFailures(t *testing.T) {
	set := NewSet(nil,
		stubDetector{name: "erroring", err: errors.New("model offline")},
		stubDetector{name: "panicking", panic: true},
		stubDetector{name: "healthy", res: Result{Indicator: IndicatorVerified, Confidence: 0.9}},
	)

	results := set.Run(context.Background(), content.Text("x"))
	for _, r := range results[:2] {
		if r.Indicator != IndicatorClean || r.Confidence != CleanConfidence || !r.Failed {
			t.Errorf("%s: got %s@%v failed=%v, want clean@0.3 failed", r.Detector, r.Indicator, r.Confidence, r.Failed)
		}
	}
	if results[2].Indicator != IndicatorVerified || results[2].Failed {
		t.Errorf("healthy detector result was altered: %+v", results[2])
	}
}

func TestSet_ClampsConfidence(t *testing.T) {
	set := NewSet(nil,
		stubDetector{name: "high", res: Result{Indicator: IndicatorScam, Confidence: 1.7}},
		stubDetector{name: "low", res: Result{Indicator: IndicatorScam, Confidence: -0.2}},
	)
	results := set.Run(context.Background(), content.Text("x"))
	if results[0].Confidence != 1 || results[1].Confidence != 0 {
		t.Errorf("confidences = %v, %v, want 1, 0", results[0].Confidence, results[1].Confidence)
	}
}

func TestDefaultSet_Names(t *testing.T) {
	want := []string{"financial_scam", "health_claim", "government_impersonation", "urgency_manipulation", "trusted_source"}
	got := DefaultSet(nil).Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultSet_SilentContent(t *testing.T) {
	results := DefaultSet(nil).Run(context.Background(), content.Text("See you at the market tomorrow"))
	for _, r := range results {
		if r.Signal() {
			t.Errorf("%s reported %s on neutral text", r.Detector, r.Indicator)
		}
	}
}

func TestSet_Register(t *testing.T) {
	set := NewSet(nil)
	set.Register(stubDetector{name: "extra", res: Result{Indicator: IndicatorSuspicious, Confidence: 0.6}})
	results := set.Run(context.Background(), content.Text("x"))
	if len(results) != 1 || results[0].Detector != "extra" {
		t.Errorf("Register did not add detector: %+v", results)
	}
}
