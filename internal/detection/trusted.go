package detection

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

const trustedConfidence = 0.9

// trustedDomains is the allowlist of official and international health
// sources. A host matches a domain exactly or as a subdomain.
var trustedDomains = []string{
	"gov.sl",
	"who.int",
	"afro.who.int",
	"africacdc.org",
	"cdc.gov",
	"unicef.org",
	"un.org",
	"ecowas.int",
}

// hostPattern finds host names with or without a scheme, e.g.
// "https://www.who.int/news", "mohs.gov.sl" or "who.int".
var hostPattern = regexp.MustCompile(`(?i)(?:https?://)?((?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,})`)

// TrustedSource marks content that cites an allowlisted domain. Silence is
// reported as Unknown, not Clean.
type TrustedSource struct{}

func (TrustedSource) Name() string { return "trusted_source" }

func (d TrustedSource) Detect(_ context.Context, c content.Content) (Result, error) {
	host, ok := findTrustedHost(c.AnalyzableText())
	if !ok {
		return Result{Detector: d.Name(), Indicator: IndicatorUnknown, Confidence: UnknownConfidence}, nil
	}
	return Result{
		Detector:   d.Name(),
		Indicator:  IndicatorVerified,
		Pattern:    "trusted_source",
		Confidence: trustedConfidence,
		Reasons:    []string{fmt.Sprintf("References trusted source: %s", host)},
		Sources:    []Source{{Title: host, URL: "https://" + host, Authority: 1.0}},
	}, nil
}

func findTrustedHost(text string) (string, bool) {
	for _, m := range hostPattern.FindAllStringSubmatch(text, -1) {
		host := strings.TrimPrefix(strings.ToLower(m[1]), "www.")
		if isTrustedHost(host) {
			return host, true
		}
	}
	return "", false
}

func isTrustedHost(host string) bool {
	for _, d := range trustedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
