// Package detection holds the rule-based content-signal detectors and the Set
// that runs them. Every detector reads the same content.Content and returns a
// Result; detectors share no state, so the Set evaluates them concurrently and
// joins before aggregation.
package detection

import (
	"context"
	"errors"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

// Indicator is the signal family a detector reports.
type Indicator string

const (
	IndicatorScam                 Indicator = "scam"
	IndicatorRequiresVerification Indicator = "requires_verification"
	IndicatorSuspicious           Indicator = "suspicious"
	IndicatorManipulation         Indicator = "manipulation"
	IndicatorVerified             Indicator = "verified"
	IndicatorUnknown              Indicator = "unknown"
	IndicatorClean                Indicator = "clean"
)

// Confidence reported by detectors that found nothing.
const (
	CleanConfidence   = 0.3
	UnknownConfidence = 0.4
)

// ErrDetectorFailure marks a detector that returned an error or panicked.
var ErrDetectorFailure = errors.New("detector failure")

// Source is a citation backing a result. Authority 1.0 is an official
// government or WHO source.
type Source struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Authority float64 `json:"authority"`
}

// Result is one detector's finding for one Content.
type Result struct {
	Detector   string    `json:"detector"`
	Indicator  Indicator `json:"indicator"`
	Pattern    string    `json:"pattern,omitempty"`
	Confidence float64   `json:"confidence"`
	Reasons    []string  `json:"reasons,omitempty"`
	Sources    []Source  `json:"sources,omitempty"`

	// Failed is set when the Set substituted a clean result for a detector
	// that errored or panicked.
	Failed bool `json:"failed,omitempty"`
}

// Signal reports whether r carries evidence in either direction. Clean and
// Unknown results are silence.
func (r Result) Signal() bool {
	return r.Indicator != IndicatorClean && r.Indicator != IndicatorUnknown && r.Indicator != ""
}

// Detector evaluates one pattern family. Implementations must not mutate the
// content and must be safe for concurrent use.
type Detector interface {
	Name() string
	Detect(ctx context.Context, c content.Content) (Result, error)
}

// Clean returns the no-match result for the named detector.
func Clean(name string) Result {
	return Result{Detector: name, Indicator: IndicatorClean, Confidence: CleanConfidence}
}
