package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

const (
	urgencyMinMatches = 2
	urgencyConfidence = 0.8
)

var urgencyPhrases = newWordList(
	"act now",
	"limited time",
	"within 24 hours",
	"urgent",
	"immediately",
	"expires today",
	"last chance",
	"hurry",
	"don't delay",
	"before it's too late",
	"only today",
	"today only",
	"final warning",
	"share before it is deleted",
	"forward to everyone",
)

// UrgencyManipulation flags pressure tactics. It cites no sources since
// urgency is a style, not a claim.
type UrgencyManipulation struct{}

func (UrgencyManipulation) Name() string { return "urgency_manipulation" }

func (d UrgencyManipulation) Detect(_ context.Context, c content.Content) (Result, error) {
	matches := urgencyPhrases.matches(c.AnalyzableText())
	if len(matches) < urgencyMinMatches {
		return Clean(d.Name()), nil
	}
	return Result{
		Detector:   d.Name(),
		Indicator:  IndicatorManipulation,
		Pattern:    "urgency_manipulation",
		Confidence: urgencyConfidence,
		Reasons:    []string{fmt.Sprintf("Uses pressure tactics: %s", strings.Join(matches, ", "))},
	}, nil
}
