package blocklist

import (
	"context"
	"log/slog"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
)

// ReasonRateLimit is recorded on blocks applied for repeated throttling.
const ReasonRateLimit = "repeated_rate_limit"

// seenPrefix marks a rate limit window that already produced a strike.
const seenPrefix = "strike-seen:"

// Limiter is the rate limiter a Guard wraps.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Guard turns away blocked senders before consulting the rate limiter, and
// strikes a sender once for every window in which they hit the limit.
// It satisfies the throttle interfaces of the API, web chat and NATS intake.
type Guard struct {
	store   *Store
	limiter Limiter
	logger  *slog.Logger
}

// NewGuard wraps limiter with the block list in store.
func NewGuard(store *Store, limiter Limiter, logger *slog.Logger) *Guard {
	return &Guard{store: store, limiter: limiter, logger: logger.With("component", "blocklist")}
}

// Allow reports whether identifier may proceed under rule. Redis errors fail
// open.
func (g *Guard) Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error) {
	st, err := g.store.Check(ctx, identifier)
	if err != nil {
		g.logger.Warn("block check failed, failing open", "error", err)
	} else if st.Blocked {
		return false, nil
	}

	ok, err := g.limiter.Allow(ctx, identifier, rule)
	if ok {
		return true, err
	}

	window := g.limiter.RetryAfter(ctx, identifier, rule)
	if window <= 0 {
		window = rule.Window
	}
	first, err := g.store.markWindow(ctx, seenPrefix+rule.Key+identifier, window)
	if err != nil {
		g.logger.Warn("strike window mark failed", "error", err)
		return false, nil
	}
	if !first {
		return false, nil
	}
	blocked, err := g.store.Strike(ctx, identifier, ReasonRateLimit)
	if err != nil {
		g.logger.Warn("strike failed", "error", err)
		return false, nil
	}
	if blocked > 0 {
		metrics.SendersBlocked.WithLabelValues(ReasonRateLimit).Inc()
		g.logger.Info("sender blocked", "rule", rule.Key, "duration", blocked.String())
	}
	return false, nil
}

// RetryAfter returns the remaining block time for a blocked identifier, and
// otherwise the rate limit window reset.
func (g *Guard) RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration {
	if st, err := g.store.Check(ctx, identifier); err == nil && st.Blocked {
		if st.Remaining > 0 {
			return st.Remaining
		}
		return Block15Min
	}
	return g.limiter.RetryAfter(ctx, identifier, rule)
}

// Check reports the block status of a sender.
func (g *Guard) Check(ctx context.Context, sender string) (Status, error) {
	return g.store.Check(ctx, sender)
}

// Block blocks a sender on a moderator's request.
func (g *Guard) Block(ctx context.Context, sender string, duration time.Duration, reason string) error {
	if err := g.store.Block(ctx, sender, duration, reason); err != nil {
		return err
	}
	metrics.SendersBlocked.WithLabelValues("moderator").Inc()
	return nil
}

// Unblock lifts a block and clears the sender's strikes.
func (g *Guard) Unblock(ctx context.Context, sender string) error {
	return g.store.Unblock(ctx, sender)
}
