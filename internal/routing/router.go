// Package routing decides whether a verdict is released to the citizen or
// held for human review.
package routing

import (
	"errors"
	"fmt"
)

// Default thresholds.
const (
	DefaultAutoReplyThreshold   = 0.70
	DefaultHumanReviewThreshold = 0.69
)

// ErrInvalidThreshold is returned for thresholds outside [0,1].
var ErrInvalidThreshold = errors.New("routing: threshold must be within [0,1]")

// Decision is the outcome of routing one verdict.
type Decision string

const (
	// DecisionAutoReply releases the verdict directly to the channel.
	DecisionAutoReply Decision = "auto_reply"
	// DecisionEscalate holds the verdict and enqueues a moderation item.
	DecisionEscalate Decision = "escalate"
	// DecisionSkipped marks content that was never analyzed.
	DecisionSkipped Decision = "skipped"
)

// Router compares aggregate confidence against the configured thresholds.
type Router struct {
	AutoReplyThreshold   float64
	HumanReviewThreshold float64
}

// NewRouter validates the thresholds and returns a Router.
func NewRouter(autoReply, humanReview float64) (Router, error) {
	r := Router{AutoReplyThreshold: autoReply, HumanReviewThreshold: humanReview}
	if err := r.Validate(); err != nil {
		return Router{}, err
	}
	return r, nil
}

// DefaultRouter returns a Router with the default thresholds.
func DefaultRouter() Router {
	return Router{
		AutoReplyThreshold:   DefaultAutoReplyThreshold,
		HumanReviewThreshold: DefaultHumanReviewThreshold,
	}
}

// Validate checks both thresholds lie in [0,1]. An inverted pair
// (HumanReviewThreshold > AutoReplyThreshold) is allowed; see Inverted.
func (r Router) Validate() error {
	if !inUnit(r.AutoReplyThreshold) {
		return fmt.Errorf("%w: auto reply threshold %v", ErrInvalidThreshold, r.AutoReplyThreshold)
	}
	if !inUnit(r.HumanReviewThreshold) {
		return fmt.Errorf("%w: human review threshold %v", ErrInvalidThreshold, r.HumanReviewThreshold)
	}
	return nil
}

// Inverted reports whether the human review threshold exceeds the auto-reply
// threshold, which makes the auto-reply threshold unreachable.
func (r Router) Inverted() bool {
	return r.HumanReviewThreshold > r.AutoReplyThreshold
}

// Route escalates confidence strictly below HumanReviewThreshold and releases
// everything else. HumanReviewThreshold is the single cut point; confidence in
// [HumanReviewThreshold, AutoReplyThreshold) is released but Provisional.
func (r Router) Route(confidence float64) Decision {
	if confidence < r.HumanReviewThreshold {
		return DecisionEscalate
	}
	return DecisionAutoReply
}

// Provisional reports whether a released verdict sits in the band between
// the two thresholds.
func (r Router) Provisional(confidence float64) bool {
	return confidence >= r.HumanReviewThreshold && confidence < r.AutoReplyThreshold
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
