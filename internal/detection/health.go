package detection

import (
	"context"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

// HealthConfidence is fixed: health claims always go to a human unless a
// stronger signal is present.
const HealthConfidence = 0.5

var healthKeywords = newWordList(
	"ebola",
	"vaccine",
	"vaccines",
	"vaccination",
	"covid",
	"covid-19",
	"coronavirus",
	"cholera",
	"mpox",
	"monkeypox",
	"lassa",
	"lassa fever",
	"malaria",
	"outbreak",
	"epidemic",
	"pandemic",
	"ministry of health",
	"cure",
	"herbal remedy",
)

var whoSource = Source{
	Title:     "World Health Organization",
	URL:       "https://www.who.int",
	Authority: 1.0,
}

// HealthClaim flags medical and outbreak claims for verification.
type HealthClaim struct{}

func (HealthClaim) Name() string { return "health_claim" }

func (d HealthClaim) Detect(_ context.Context, c content.Content) (Result, error) {
	if !healthKeywords.any(c.AnalyzableText()) {
		return Clean(d.Name()), nil
	}
	return Result{
		Detector:   d.Name(),
		Indicator:  IndicatorRequiresVerification,
		Pattern:    "health_claim",
		Confidence: HealthConfidence,
		Reasons:    []string{"Health-related claim must be checked against official health guidance"},
		Sources:    []Source{whoSource},
	}, nil
}
