package detection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
)

// Set runs a fixed list of detectors against one Content.
type Set struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewSet creates a Set evaluating detectors in the given order. Result order
// follows registration order regardless of completion order.
func NewSet(logger *slog.Logger, detectors ...Detector) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		detectors: detectors,
		logger:    logger.With("component", "detection"),
	}
}

// DefaultSet returns the five rule detectors in reporting order.
func DefaultSet(logger *slog.Logger) *Set {
	return NewSet(logger,
		FinancialScam{},
		HealthClaim{},
		GovernmentImpersonation{},
		UrgencyManipulation{},
		TrustedSource{},
	)
}

// Register appends a detector. It must not be called concurrently with Run.
func (s *Set) Register(d Detector) {
	s.detectors = append(s.detectors, d)
}

// Names returns the registered detector names in order.
func (s *Set) Names() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name()
	}
	return names
}

// Run evaluates every detector concurrently and returns once all of them have
// finished. A detector that errors or panics contributes a Clean result
// flagged as Failed.
func (s *Set) Run(ctx context.Context, c content.Content) []Result {
	results := make([]Result, len(s.detectors))

	var wg sync.WaitGroup
	for i, d := range s.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			results[i] = s.detect(ctx, d, c)
		}(i, d)
	}
	wg.Wait()

	return results
}

func (s *Set) detect(ctx context.Context, d Detector, c content.Content) (res Result) {
	name := d.Name()
	defer func() {
		if r := recover(); r != nil {
			res = s.failed(name, fmt.Errorf("%w: panic: %v", ErrDetectorFailure, r))
		}
	}()

	res, err := d.Detect(ctx, c)
	if err != nil {
		return s.failed(name, fmt.Errorf("%w: %v", ErrDetectorFailure, err))
	}
	res.Detector = name
	res.Confidence = clamp(res.Confidence)
	return res
}

func (s *Set) failed(name string, err error) Result {
	s.logger.Warn("detector failed, treating as clean", "detector", name, "error", err)
	metrics.DetectorFailures.WithLabelValues(name).Inc()
	res := Clean(name)
	res.Failed = true
	return res
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
