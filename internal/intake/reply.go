package intake

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

const maxReplyReasons = 3

// Fixed replies.
const (
	UnsupportedReply = "Sorry, we could not analyze this content type. Please send the message as text, an image with a caption, or a voice note."
	RateLimitedReply = "You have sent too many messages. Please wait %s and try again."
	InvalidReply     = "Sorry, we could not read your message. Please try again."
)

var guidance = map[verdict.Label]string{
	verdict.LabelFalse:      "This message shows signs of a scam or false information. Do not send money or share your PIN or personal details.",
	verdict.LabelTrue:       "This information matches official sources.",
	verdict.LabelMisleading: "Parts of this message may be misleading. Check official sources before sharing it.",
	verdict.LabelUnverified: "We could not confirm this information. Treat it with caution and do not forward it.",
}

// FormatReply renders a verdict as the text a citizen receives.
func FormatReply(res pipeline.Result, reviewed bool) string {
	if res.Unsupported {
		return UnsupportedReply
	}

	var b strings.Builder
	if res.PendingReview {
		fmt.Fprintf(&b, "Thank you. Your message is being reviewed by our fact-checking team and we will reply once it has been verified.\nRef: %s", res.VerificationID)
		return b.String()
	}

	if reviewed {
		b.WriteString("Update: a fact-checker has reviewed your message.\n")
	}
	fmt.Fprintf(&b, "Verdict: %s", res.Verdict)
	if !reviewed {
		fmt.Fprintf(&b, " (%d%% confidence)", int(math.Round(res.Confidence*100)))
	}
	b.WriteString("\n")
	b.WriteString(guidance[res.Verdict])

	for i, reason := range res.Reasoning {
		if i == maxReplyReasons {
			break
		}
		b.WriteString("\n- ")
		b.WriteString(reason)
	}
	if len(res.Sources) > 0 {
		s := res.Sources[0]
		fmt.Fprintf(&b, "\nSource: %s (%s)", s.Title, s.URL)
	}
	if res.Provisional {
		b.WriteString("\nThis is a preliminary assessment.")
	}
	fmt.Fprintf(&b, "\nRef: %s", res.VerificationID)
	return b.String()
}

// FormatRateLimited renders the throttling reply.
func FormatRateLimited(wait time.Duration) string {
	if wait < time.Second {
		wait = time.Minute
	}
	return fmt.Sprintf(RateLimitedReply, wait.Round(time.Second))
}
