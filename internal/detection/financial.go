package detection

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

const (
	financialMinMatches = 2
	financialMaxReasons = 3
	financialBase       = 0.6
	financialStep       = 0.1
	financialCap        = 0.95
)

// financialKeywords are matched as case-insensitive substrings. Order is the
// order reasons are reported in.
var financialKeywords = []string{
	"free money",
	"send money",
	"account suspended",
	"account blocked",
	"click link",
	"click the link",
	"click here",
	"register now",
	"you have won",
	"you have been selected",
	"claim your prize",
	"claim your reward",
	"verify your account",
	"pin code",
	"processing fee",
	"registration fee",
	"double your money",
	"guaranteed profit",
	"investment opportunity",
	"cash grant",
	"to all citizens",
}

// currencyPattern matches amounts such as "Le500,000", "NLe 200", "$50" and
// "1,000 leones". All amounts count as one keyword.
var currencyPattern = regexp.MustCompile(`(?i)(\b(?:nle|sll|le)\s?\d[\d,.]*|\$\s?\d[\d,.]*|\b\d[\d,.]*\s?(?:leones|dollars|usd)\b)`)

const currencyKeyword = "currency amount"

var financialSource = Source{
	Title:     "Bank of Sierra Leone consumer protection advisory",
	URL:       "https://www.bsl.gov.sl",
	Authority: 0.95,
}

// FinancialScam flags money-transfer, prize and phishing lures.
type FinancialScam struct{}

func (FinancialScam) Name() string { return "financial_scam" }

func (d FinancialScam) Detect(_ context.Context, c content.Content) (Result, error) {
	text := c.AnalyzableText()
	matches := substringMatches(text, financialKeywords)
	if currencyPattern.MatchString(text) {
		matches = append(matches, currencyKeyword)
	}
	if len(matches) < financialMinMatches {
		return Clean(d.Name()), nil
	}

	shown := matches
	if len(shown) > financialMaxReasons {
		shown = shown[:financialMaxReasons]
	}
	reasons := make([]string, len(shown))
	for i, kw := range shown {
		reasons[i] = fmt.Sprintf("Contains common scam phrase: %q", kw)
	}

	return Result{
		Detector:   d.Name(),
		Indicator:  IndicatorScam,
		Pattern:    "financial_scam",
		Confidence: math.Min(financialCap, financialBase+financialStep*float64(len(matches))),
		Reasons:    reasons,
		Sources:    []Source{financialSource},
	}, nil
}
