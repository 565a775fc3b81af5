package webchat

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/intake"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/protocol"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/report"
)

// SenderPrefix marks web chat senders in verification records.
const SenderPrefix = "web:"

// Submitter runs content through the verification pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Reporter files citizen case reports.
type Reporter interface {
	FileReport(ctx context.Context, f report.Filing) (*report.CaseReport, error)
}

// Throttle limits requests per identifier.
type Throttle interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Handler turns client messages into server messages.
type Handler struct {
	submitter Submitter
	reports   Reporter
	throttle  Throttle
	logger    *slog.Logger
}

// NewHandler creates a Handler. reports may be nil, in which case report
// messages are answered with an unavailable error.
func NewHandler(submitter Submitter, reports Reporter, throttle Throttle, logger *slog.Logger) *Handler {
	return &Handler{
		submitter: submitter,
		reports:   reports,
		throttle:  throttle,
		logger:    logger.With("component", "webchat"),
	}
}

// HandleMessage processes one client frame for the given session and returns
// the encoded reply.
func (h *Handler) HandleMessage(ctx context.Context, sessionID string, data []byte) []byte {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		h.logger.Debug("bad client message", "session_id", sessionID, "type", msgType, "error", err)
		return errorMessage(protocol.CodeBadMessage, "Message could not be read.")
	}

	switch m := msg.(type) {
	case protocol.VerifyMsg:
		return h.verify(ctx, sessionID, m)
	case protocol.ReportMsg:
		return h.report(ctx, sessionID, m)
	case protocol.PingMsg:
		return encode(protocol.TypePong, protocol.PongMsg{})
	}
	return errorMessage(protocol.CodeBadMessage, "Unsupported message type.")
}

func (h *Handler) verify(ctx context.Context, sessionID string, m protocol.VerifyMsg) []byte {
	sender := SenderPrefix + sessionID
	if limited := h.limited(ctx, sender, ratelimit.RuleSubmission); limited != nil {
		return limited
	}

	res, err := h.submitter.Submit(ctx, pipeline.Request{
		Content:   content.Normalize(m.Payload),
		UserPhone: sender,
		Channel:   pipeline.ChannelWeb,
		Language:  m.Language,
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return errorMessage(protocol.CodeInvalid, intake.InvalidReply)
	case err != nil:
		h.logger.Warn("verification failed", "session_id", sessionID, "error", err)
		return errorMessage(protocol.CodeUnavailable, "We could not check this right now. Please try again shortly.")
	}

	text := intake.FormatReply(*res, false)
	if res.PendingReview {
		return encode(protocol.TypePendingReview, protocol.PendingReviewMsg{
			VerificationID: res.VerificationID,
			Text:           text,
		})
	}
	return encode(protocol.TypeVerdict, protocol.VerdictMsg{Text: text, Result: *res})
}

func (h *Handler) report(ctx context.Context, sessionID string, m protocol.ReportMsg) []byte {
	if h.reports == nil {
		return errorMessage(protocol.CodeUnavailable, "Case reporting is not available.")
	}
	if limited := h.limited(ctx, m.Phone, ratelimit.RuleReport); limited != nil {
		return limited
	}

	cr, err := h.reports.FileReport(ctx, report.Filing{
		IncidentType: m.IncidentType,
		VictimPhone:  m.Phone,
		Description:  m.Description,
		AmountLost:   m.AmountLost,
	})
	switch {
	case errors.Is(err, report.ErrInvalidReport):
		return errorMessage(protocol.CodeInvalid, err.Error())
	case err != nil:
		h.logger.Warn("case report failed", "session_id", sessionID, "error", err)
		return errorMessage(protocol.CodeUnavailable, "We could not file your report right now. Please try again shortly.")
	}
	return encode(protocol.TypeReportFiled, protocol.ReportFiledMsg{
		CaseID:         cr.CaseID,
		AssignedAgency: cr.AssignedAgency,
	})
}

// limited returns a rate_limited message when identifier is over rule, or
// nil when the request may proceed.
func (h *Handler) limited(ctx context.Context, identifier string, rule ratelimit.Rule) []byte {
	if h.throttle == nil {
		return nil
	}
	if ok, _ := h.throttle.Allow(ctx, identifier, rule); ok {
		return nil
	}
	wait := h.throttle.RetryAfter(ctx, identifier, rule)
	return encode(protocol.TypeRateLimited, protocol.RateLimitedMsg{
		RetryAfter: int(math.Ceil(wait.Seconds())),
	})
}

func errorMessage(code, message string) []byte {
	return encode(protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

// encode builds a server message. Every payload here is a plain struct, so
// marshalling cannot fail in practice; a failure yields an empty frame.
func encode(msgType string, payload interface{}) []byte {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		return nil
	}
	return data
}
