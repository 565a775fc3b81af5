// Package verdict turns a set of detector results into a single labeled
// verdict. Aggregation is a pure function: the same results always produce
// the same Verdict.
package verdict

import (
	"fmt"
	"math"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
)

// Label is the citizen-facing verdict.
type Label string

const (
	LabelTrue       Label = "TRUE"
	LabelFalse      Label = "FALSE"
	LabelMisleading Label = "MISLEADING"
	LabelUnverified Label = "UNVERIFIED"
)

// ParseLabel validates a label supplied by a moderator.
func ParseLabel(s string) (Label, error) {
	switch l := Label(s); l {
	case LabelTrue, LabelFalse, LabelMisleading, LabelUnverified:
		return l, nil
	}
	return "", fmt.Errorf("verdict: unknown label %q", s)
}

// RiskLevel summarizes how harmful acting on the content could be.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

// Label thresholds on aggregate confidence.
const (
	DecisiveThreshold   = 0.85
	MisleadingThreshold = 0.70
	DefaultConfidence   = 0.5
)

// Output limits.
const (
	MaxReasons = 5
	MaxSources = 3
)

// Indicator weights. Indicators not listed weigh DefaultWeight.
var weights = map[detection.Indicator]float64{
	detection.IndicatorScam:         0.30,
	detection.IndicatorManipulation: 0.25,
	detection.IndicatorSuspicious:   0.25,
	detection.IndicatorVerified:     0.20,
}

const DefaultWeight = 0.10

// Weight returns the aggregation weight of an indicator.
func Weight(ind detection.Indicator) float64 {
	if w, ok := weights[ind]; ok {
		return w
	}
	return DefaultWeight
}

// Verdict is the aggregation output embedded in every verification.
type Verdict struct {
	Label            Label              `json:"label"`
	Confidence       float64            `json:"confidence"`
	RiskLevel        RiskLevel          `json:"riskLevel"`
	Reasons          []string           `json:"reasons"`
	Sources          []detection.Source `json:"sources"`
	DetectedPatterns []string           `json:"detectedPatterns"`
}

// Unverified is the verdict for content the pipeline could not analyze.
func Unverified() Verdict {
	return Verdict{
		Label:            LabelUnverified,
		Confidence:       DefaultConfidence,
		RiskLevel:        RiskUnknown,
		Reasons:          []string{},
		Sources:          []detection.Source{},
		DetectedPatterns: []string{},
	}
}

// Aggregate combines detector results. Only results that carry a signal
// enter the weighted mean; when every detector is silent the confidence is
// DefaultConfidence and the label UNVERIFIED.
func Aggregate(results []detection.Result) Verdict {
	var weighted, total float64
	scam := false
	for _, r := range results {
		if r.Indicator == detection.IndicatorScam {
			scam = true
		}
		if !r.Signal() {
			continue
		}
		w := Weight(r.Indicator)
		weighted += r.Confidence * w
		total += w
	}

	confidence := DefaultConfidence
	if total > 0 {
		confidence = round4(weighted / total)
	}
	confidence = math.Max(0, math.Min(1, confidence))

	label := labelFor(confidence, scam)
	return Verdict{
		Label:            label,
		Confidence:       confidence,
		RiskLevel:        riskFor(label, confidence),
		Reasons:          collectReasons(results),
		Sources:          collectSources(results),
		DetectedPatterns: collectPatterns(results),
	}
}

func labelFor(confidence float64, scam bool) Label {
	switch {
	case confidence >= DecisiveThreshold:
		if scam {
			return LabelFalse
		}
		return LabelTrue
	case confidence >= MisleadingThreshold:
		return LabelMisleading
	}
	return LabelUnverified
}

func riskFor(label Label, confidence float64) RiskLevel {
	switch {
	case label == LabelFalse && confidence >= DecisiveThreshold:
		return RiskHigh
	case label == LabelMisleading && confidence >= MisleadingThreshold:
		return RiskMedium
	case label == LabelUnverified:
		return RiskUnknown
	}
	return RiskLow
}

func collectReasons(results []detection.Result) []string {
	reasons := []string{}
	for _, r := range results {
		for _, reason := range r.Reasons {
			if len(reasons) == MaxReasons {
				return reasons
			}
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func collectSources(results []detection.Result) []detection.Source {
	sources := []detection.Source{}
	for _, r := range results {
		for _, s := range r.Sources {
			if len(sources) == MaxSources {
				return sources
			}
			sources = append(sources, s)
		}
	}
	return sources
}

func collectPatterns(results []detection.Result) []string {
	patterns := []string{}
	for _, r := range results {
		if r.Pattern != "" {
			patterns = append(patterns, r.Pattern)
		}
	}
	return patterns
}

// round4 keeps threshold comparisons stable against float noise such as
// 0.6+0.1*2 = 0.8000000000000002.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
