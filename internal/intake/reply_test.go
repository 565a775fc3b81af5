package intake

import (
	"strings"
	"testing"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

func contentPayload(text string) content.Payload {
	return content.Payload{Type: "text", Text: text}
}

func contentPayloadType(typ string) content.Payload {
	return content.Payload{Type: typ}
}

func TestFormatReply(t *testing.T) {
	base := pipeline.Result{
		VerificationID: "VER-1700000000000-abcdefghi",
		Verdict:        verdict.LabelFalse,
		Confidence:     0.8591,
		Reasoning:      []string{"a", "b", "c", "d"},
		Sources:        []detection.Source{{Title: "Bank of Sierra Leone", URL: "https://www.bsl.gov.sl"}},
	}

	tests := []struct {
		name     string
		res      func() pipeline.Result
		reviewed bool
		want     []string
		notWant  []string
	}{
		{
			name: "released",
			res:  func() pipeline.Result { return base },
			want: []string{"Verdict: FALSE (86% confidence)", "Do not send money", "- a", "- c", "Source: Bank of Sierra Leone", "Ref: VER-1700000000000-abcdefghi"},
			notWant: []string{"- d", "preliminary"},
		},
		{
			name: "pending",
			res: func() pipeline.Result {
				r := base
				r.PendingReview = true
				return r
			},
			want:    []string{"being reviewed", "Ref: VER-1700000000000-abcdefghi"},
			notWant: []string{"Verdict:"},
		},
		{
			name: "unsupported",
			res: func() pipeline.Result {
				r := base
				r.Unsupported = true
				return r
			},
			want: []string{"could not analyze this content type"},
		},
		{
			name: "provisional",
			res: func() pipeline.Result {
				r := base
				r.Verdict = verdict.LabelUnverified
				r.Provisional = true
				return r
			},
			want: []string{"Verdict: UNVERIFIED", "preliminary assessment"},
		},
		{
			name:     "reviewed",
			res:      func() pipeline.Result { return base },
			reviewed: true,
			want:     []string{"Update: a fact-checker", "Verdict: FALSE\n"},
			notWant:  []string{"confidence"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatReply(tt.res(), tt.reviewed)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("FormatReply() = %q, missing %q", got, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("FormatReply() = %q, should not contain %q", got, w)
				}
			}
		})
	}
}

func TestFormatRateLimited(t *testing.T) {
	if got := FormatRateLimited(30 * time.Second); !strings.Contains(got, "30s") {
		t.Errorf("FormatRateLimited(30s) = %q", got)
	}
	if got := FormatRateLimited(0); !strings.Contains(got, "1m0s") {
		t.Errorf("FormatRateLimited(0) = %q", got)
	}
}
