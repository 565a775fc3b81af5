// Package pipeline runs one verification end to end: normalize, detect,
// aggregate, route, record. It also serves the moderator queue operations
// that close out escalated verifications.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/evidence"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verification"
)

const (
	// DefaultTimeout bounds a whole Submit call.
	DefaultTimeout = 25 * time.Second
	// MaxTimeout is the end-to-end latency target for a citizen reply.
	MaxTimeout = 30 * time.Second
	// DefaultPendingLimit caps GetPendingModeration.
	DefaultPendingLimit = 100
)

var tracer = otel.Tracer("github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline")

// Store is the persistence the pipeline needs.
type Store interface {
	SaveVerification(ctx context.Context, v *verification.Verification, item *moderation.Item) error
	Get(ctx context.Context, id string) (*verification.Verification, error)
	PendingModeration(ctx context.Context, limit int) ([]moderation.Pending, error)
	ResolveModeration(ctx context.Context, verificationID string, r moderation.Resolution) error
}

// Counters updates the persisted SystemMetrics.
type Counters interface {
	Increment(ctx context.Context, name string, delta int64) error
}

// Notifier publishes queue events and reviewed verdicts. Publishing is at
// least once and failures never fail the operation that triggered them.
type Notifier interface {
	NotifyModeration(ctx context.Context, n moderation.Notification) error
	Deliver(ctx context.Context, d Delivery) error
}

// Options configures a Service.
type Options struct {
	Router   routing.Router
	Timeout  time.Duration
	Retry    RetryPolicy
	Counters Counters // optional
	Notifier Notifier // optional
}

// Service is the verification pipeline.
type Service struct {
	detectors *detection.Set
	router    routing.Router
	store     Store
	counters  Counters
	notifier  Notifier
	timeout   time.Duration
	retry     RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a pipeline Service. It fails when the router
// thresholds are out of range.
func NewService(detectors *detection.Set, store Store, opts Options, logger *slog.Logger) (*Service, error) {
	if err := opts.Router.Validate(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	logger = logger.With("component", "pipeline")
	if opts.Router.Inverted() {
		logger.Warn("human review threshold exceeds auto-reply threshold",
			"auto_reply_threshold", opts.Router.AutoReplyThreshold,
			"human_review_threshold", opts.Router.HumanReviewThreshold)
	}
	return &Service{
		detectors: detectors,
		router:    opts.Router,
		store:     store,
		counters:  opts.Counters,
		notifier:  opts.Notifier,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Submit verifies one message and records it. Unsupported content is
// recorded with an UNVERIFIED verdict and never reaches the detectors or the
// moderation queue. The returned error is ErrInvalidInput or
// ErrStorageUnavailable; no Result is returned unless the verification was
// persisted.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.Submit", trace.WithAttributes(
		attribute.String("channel", req.Channel),
		attribute.String("content.kind", string(req.Content.Kind)),
	))
	defer span.End()

	if err := s.normalize(&req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = start
	}
	receivedAt = receivedAt.UTC().Truncate(time.Millisecond)

	var (
		v        verdict.Verdict
		decision routing.Decision
	)
	if req.Content.Supported() {
		v = s.evaluate(ctx, req)
		decision = s.router.Route(v.Confidence)
	} else {
		v = verdict.Unverified()
		decision = routing.DecisionSkipped
	}

	rec, item, err := s.build(req, v, decision, receivedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build verification")
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	span.SetAttributes(attribute.String("verification.id", rec.ID))

	if err := s.record(ctx, rec, item); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record verification")
		s.logger.Error("failed to record verification",
			"verification_id", rec.ID,
			"channel", rec.Channel,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.afterRecord(ctx, rec, item)

	res := resultFrom(rec.ID, v, rec.CreatedAt)
	res.PendingReview = decision == routing.DecisionEscalate
	res.Provisional = decision == routing.DecisionAutoReply && s.router.Provisional(v.Confidence)
	res.Unsupported = decision == routing.DecisionSkipped

	metrics.PipelineLatency.Observe(s.now().Sub(start).Seconds())
	s.logger.Info("verification recorded",
		"verification_id", rec.ID,
		"channel", rec.Channel,
		"label", v.Label,
		"confidence", v.Confidence,
		"decision", decision)
	return &res, nil
}

func (s *Service) normalize(req *Request) error {
	req.UserPhone = strings.TrimSpace(req.UserPhone)
	if req.UserPhone == "" {
		return fmt.Errorf("%w: user phone is required", ErrInvalidInput)
	}
	if err := req.Content.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	if req.Channel == "" {
		req.Channel = ChannelAPI
	}
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, req Request) verdict.Verdict {
	ctx, span := tracer.Start(ctx, "pipeline.detect")
	defer span.End()

	results := s.detectors.Run(ctx, req.Content)
	v := verdict.Aggregate(results)
	span.SetAttributes(
		attribute.String("verdict.label", string(v.Label)),
		attribute.Float64("verdict.confidence", v.Confidence),
	)
	return v
}

func (s *Service) build(req Request, v verdict.Verdict, decision routing.Decision, receivedAt time.Time) (*verification.Verification, *moderation.Item, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	id, err := evidence.NewVerificationID(now)
	if err != nil {
		return nil, nil, err
	}
	hash, err := evidence.Hash(req.Content, receivedAt)
	if err != nil {
		return nil, nil, err
	}
	rec := &verification.Verification{
		ID:           id,
		UserPhone:    req.UserPhone,
		Channel:      req.Channel,
		Language:     req.Language,
		Content:      req.Content,
		Verdict:      v,
		Decision:     decision,
		EvidenceHash: hash,
		ReceivedAt:   receivedAt,
		CreatedAt:    now,
	}
	var item *moderation.Item
	if decision == routing.DecisionEscalate {
		it := moderation.NewItem(id, now)
		item = &it
	}
	return rec, item, nil
}

func (s *Service) record(ctx context.Context, rec *verification.Verification, item *moderation.Item) error {
	ctx, span := tracer.Start(ctx, "pipeline.record")
	defer span.End()

	return s.retry.retry(ctx, func(ctx context.Context) error {
		err := s.store.SaveVerification(ctx, rec, item)
		if err != nil && !permanent(err) {
			s.logger.Warn("storage write failed, retrying", "verification_id", rec.ID, "error", err)
		}
		return err
	})
}

// afterRecord updates counters and publishes queue events. It runs only
// after the verification is durable.
func (s *Service) afterRecord(ctx context.Context, rec *verification.Verification, item *moderation.Item) {
	metrics.VerificationsTotal.WithLabelValues(string(rec.Verdict.Label)).Inc()
	metrics.RoutingDecisions.WithLabelValues(string(rec.Decision)).Inc()

	s.increment(ctx, metrics.MetricTotalVerifications, 1)
	switch rec.Decision {
	case routing.DecisionAutoReply:
		s.increment(ctx, metrics.MetricAutoReplies, 1)
	case routing.DecisionEscalate:
		s.increment(ctx, metrics.MetricEscalations, 1)
		s.increment(ctx, metrics.MetricQueueDepth, 1)
		metrics.ModerationQueueDepth.Inc()
	}

	if item != nil && s.notifier != nil {
		n := moderation.Notification{
			Event:          "enqueued",
			VerificationID: rec.ID,
			Label:          rec.Verdict.Label,
			Confidence:     rec.Verdict.Confidence,
			Ts:             item.EnqueuedAt.UnixMilli(),
		}
		if err := s.notifier.NotifyModeration(ctx, n); err != nil {
			s.logger.Warn("failed to publish moderation event", "verification_id", rec.ID, "error", err)
		}
	}
}

func (s *Service) increment(ctx context.Context, name string, delta int64) {
	if s.counters == nil {
		return
	}
	if err := s.counters.Increment(ctx, name, delta); err != nil {
		s.logger.Warn("failed to increment counter", "counter", name, "error", err)
	}
}

// GetPendingModeration lists pending verifications, oldest first.
func (s *Service) GetPendingModeration(ctx context.Context, limit int) ([]moderation.Pending, error) {
	if limit <= 0 || limit > DefaultPendingLimit {
		limit = DefaultPendingLimit
	}
	pending, err := s.store.PendingModeration(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return pending, nil
}

// Resolve closes the pending item of a verification with a moderator's
// final label and delivers the reviewed verdict to the citizen. It returns
// ErrNotFound for unknown verifications and moderation.ErrNotPending when
// nothing is pending.
func (s *Service) Resolve(ctx context.Context, verificationID string, r moderation.Resolution) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Resolve", trace.WithAttributes(
		attribute.String("verification.id", verificationID),
	))
	defer span.End()

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := s.store.Get(ctx, verificationID)
	if errors.Is(err, verification.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := s.store.ResolveModeration(ctx, verificationID, r); err != nil {
		if errors.Is(err, moderation.ErrNotPending) {
			return nil, err
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.increment(ctx, metrics.MetricModerationResolved, 1)
	s.increment(ctx, metrics.MetricQueueDepth, -1)
	metrics.ModerationQueueDepth.Dec()

	final := rec.Verdict
	final.Label = r.Label
	final.RiskLevel = reviewedRisk(r.Label)
	res := resultFrom(rec.ID, final, s.now().UTC())

	if s.notifier != nil {
		n := moderation.Notification{
			Event:          "resolved",
			VerificationID: rec.ID,
			Label:          r.Label,
			Confidence:     final.Confidence,
			Ts:             res.Timestamp.UnixMilli(),
		}
		if err := s.notifier.NotifyModeration(ctx, n); err != nil {
			s.logger.Warn("failed to publish moderation event", "verification_id", rec.ID, "error", err)
		}
		d := Delivery{
			UserPhone: rec.UserPhone,
			Channel:   rec.Channel,
			Language:  rec.Language,
			Result:    res,
			Reviewed:  true,
		}
		if err := s.notifier.Deliver(ctx, d); err != nil {
			s.logger.Warn("failed to deliver reviewed verdict", "verification_id", rec.ID, "error", err)
		}
	}

	s.logger.Info("moderation resolved",
		"verification_id", rec.ID,
		"label", r.Label,
		"resolved_by", r.ResolvedBy)
	return &res, nil
}

// reviewedRisk maps a moderator's label onto a risk level. A human verdict
// carries no confidence band, so only the label decides.
func reviewedRisk(l verdict.Label) verdict.RiskLevel {
	switch l {
	case verdict.LabelFalse:
		return verdict.RiskHigh
	case verdict.LabelMisleading:
		return verdict.RiskMedium
	case verdict.LabelUnverified:
		return verdict.RiskUnknown
	}
	return verdict.RiskLow
}
