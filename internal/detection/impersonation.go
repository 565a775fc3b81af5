package detection

import (
	"context"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

const impersonationConfidence = 0.75

var governmentKeywords = newWordList(
	"government",
	"gov't",
	"ministry",
	"minister",
	"president",
	"state house",
	"parliament",
	"police",
	"nra",
	"national revenue authority",
	"nassit",
	"bank of sierra leone",
	"office of the president",
	"official notice",
)

var pressureKeywords = newWordList(
	"urgent",
	"urgently",
	"immediately",
	"now",
	"today",
	"deadline",
	"expire",
	"expires",
	"final notice",
	"last warning",
	"within 24 hours",
	"act fast",
	"asap",
)

var pressReleaseSources = []Source{
	{Title: "State House Sierra Leone press releases", URL: "https://statehouse.gov.sl/press-releases", Authority: 1.0},
	{Title: "Ministry of Information and Civic Education", URL: "https://mic.gov.sl", Authority: 1.0},
}

// GovernmentImpersonation fires only when a message invokes a government body
// and pressures the reader at the same time. Either alone is ordinary.
type GovernmentImpersonation struct{}

func (GovernmentImpersonation) Name() string { return "government_impersonation" }

func (d GovernmentImpersonation) Detect(_ context.Context, c content.Content) (Result, error) {
	text := c.AnalyzableText()
	if !governmentKeywords.any(text) || !pressureKeywords.any(text) {
		return Clean(d.Name()), nil
	}
	sources := make([]Source, len(pressReleaseSources))
	copy(sources, pressReleaseSources)
	return Result{
		Detector:   d.Name(),
		Indicator:  IndicatorSuspicious,
		Pattern:    "government_impersonation",
		Confidence: impersonationConfidence,
		Reasons:    []string{"Claims government authority while demanding urgent action; check official press releases"},
		Sources:    sources,
	}, nil
}
