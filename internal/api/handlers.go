package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/report"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

const (
	defaultPendingLimit = 20
	maxPendingLimit     = 100

	// retryAfterSeconds is advertised when storage is unavailable.
	retryAfterSeconds = 5

	maxBlockDuration = 7 * 24 * time.Hour
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: true, Message: message})
}

func unavailable(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
	return fail(c, fiber.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
}

// throttled answers 429 when identifier is over rule.
func (h *handlers) throttled(c *fiber.Ctx, identifier string, rule ratelimit.Rule) (bool, error) {
	if h.deps.Throttle == nil {
		return false, nil
	}
	ctx := c.UserContext()
	if ok, _ := h.deps.Throttle.Allow(ctx, identifier, rule); ok {
		return false, nil
	}
	wait := h.deps.Throttle.RetryAfter(ctx, identifier, rule)
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	return true, fail(c, fiber.StatusTooManyRequests, "Too many requests")
}

func (h *handlers) submit(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	phone := strings.TrimSpace(req.UserPhone)
	if phone == "" {
		return fail(c, fiber.StatusBadRequest, "user phone is required")
	}
	if limited, err := h.throttled(c, phone, ratelimit.RuleSubmission); limited {
		return err
	}

	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = pipeline.ChannelAPI
	}
	res, err := h.deps.Verifier.Submit(c.UserContext(), pipeline.Request{
		Content:   content.Normalize(req.Content),
		UserPhone: phone,
		Channel:   channel,
		Language:  req.Language,
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrStorageUnavailable):
		h.logger.Error("verification not recorded", "error", err)
		return unavailable(c)
	case err != nil:
		return err
	}

	status := fiber.StatusOK
	if res.PendingReview {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(res)
}

func (h *handlers) pending(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultPendingLimit)
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}

	items, err := h.deps.Verifier.GetPendingModeration(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("pending moderation query failed", "error", err)
		return unavailable(c)
	}
	if items == nil {
		items = []moderation.Pending{}
	}
	return c.JSON(PendingResponse{Items: items, Count: len(items)})
}

func (h *handlers) resolve(c *fiber.Ctx) error {
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	label, err := verdict.ParseLabel(strings.ToUpper(strings.TrimSpace(req.Label)))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	resolvedBy := moderatorID(c)
	if resolvedBy == "" {
		return fail(c, fiber.StatusUnauthorized, "Token has no subject")
	}

	res, err := h.deps.Verifier.Resolve(c.UserContext(), c.Params("id"), moderation.Resolution{
		Label:      label,
		ResolvedBy: resolvedBy,
		Note:       req.Note,
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Verification not found")
	case errors.Is(err, moderation.ErrNotPending):
		return fail(c, fiber.StatusConflict, "Verification has no pending moderation item")
	case errors.Is(err, pipeline.ErrStorageUnavailable):
		h.logger.Error("resolution not recorded", "verification_id", c.Params("id"), "error", err)
		return unavailable(c)
	case err != nil:
		return err
	}
	return c.JSON(res)
}

func (h *handlers) blockStatus(c *fiber.Ctx) error {
	if h.deps.Blocks == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Sender blocking is not available")
	}
	sender := strings.TrimSpace(c.Params("sender"))
	st, err := h.deps.Blocks.Check(c.UserContext(), sender)
	if err != nil {
		h.logger.Error("block lookup failed", "error", err)
		return unavailable(c)
	}
	return c.JSON(BlockResponse{
		Sender:           sender,
		Blocked:          st.Blocked,
		Reason:           st.Reason,
		RemainingSeconds: int(math.Ceil(st.Remaining.Seconds())),
	})
}

func (h *handlers) block(c *fiber.Ctx) error {
	if h.deps.Blocks == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Sender blocking is not available")
	}
	var req BlockRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	duration, err := time.ParseDuration(strings.TrimSpace(req.Duration))
	if err != nil || duration <= 0 || duration > maxBlockDuration {
		return fail(c, fiber.StatusBadRequest, "duration must be between 1s and 168h")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "moderator"
	}
	sender := strings.TrimSpace(c.Params("sender"))
	if err := h.deps.Blocks.Block(c.UserContext(), sender, duration, reason); err != nil {
		h.logger.Error("block not applied", "error", err)
		return unavailable(c)
	}
	h.logger.Info("sender blocked by moderator", "moderator", moderatorID(c), "duration", duration.String())
	return c.JSON(BlockResponse{
		Sender:           sender,
		Blocked:          true,
		Reason:           reason,
		RemainingSeconds: int(duration.Seconds()),
	})
}

func (h *handlers) unblock(c *fiber.Ctx) error {
	if h.deps.Blocks == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Sender blocking is not available")
	}
	if err := h.deps.Blocks.Unblock(c.UserContext(), strings.TrimSpace(c.Params("sender"))); err != nil {
		h.logger.Error("unblock failed", "error", err)
		return unavailable(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) fileReport(c *fiber.Ctx) error {
	if h.deps.Reports == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Case reporting is not available")
	}
	var req ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if limited, err := h.throttled(c, strings.TrimSpace(req.VictimPhone), ratelimit.RuleReport); limited {
		return err
	}

	cr, err := h.deps.Reports.FileReport(c.UserContext(), report.Filing{
		IncidentType: req.IncidentType,
		VictimPhone:  req.VictimPhone,
		Description:  req.Description,
		AmountLost:   req.AmountLost,
	})
	switch {
	case errors.Is(err, report.ErrInvalidReport):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("case report not recorded", "error", err)
		return unavailable(c)
	}
	return c.Status(fiber.StatusCreated).JSON(cr)
}

func (h *handlers) systemMetrics(c *fiber.Ctx) error {
	if h.deps.Counters == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Metrics are not available")
	}
	snap, err := h.deps.Counters.Snapshot(c.UserContext())
	if err != nil {
		h.logger.Error("metrics snapshot failed", "error", err)
		return unavailable(c)
	}
	return c.JSON(snap)
}

func (h *handlers) health(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok"}
	if len(h.deps.Checks) > 0 {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.deps.Checks))
		for name, check := range h.deps.Checks {
			if err := check(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := fiber.StatusOK
	if resp.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}
