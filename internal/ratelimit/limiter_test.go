package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}
	sender := uuid.NewString()

	for i := 0; i < rule.Limit; i++ {
		ok, err := l.Allow(ctx, sender, rule)
		if err != nil || !ok {
			t.Fatalf("Allow #%d = %v, %v; want true, nil", i+1, ok, err)
		}
	}
	ok, err := l.Allow(ctx, sender, rule)
	if err != nil || ok {
		t.Errorf("Allow over limit = %v, %v; want false, nil", ok, err)
	}

	if n, _ := l.Remaining(ctx, sender, rule); n != 0 {
		t.Errorf("Remaining = %d, want 0", n)
	}
	if d := l.RetryAfter(ctx, sender, rule); d <= 0 || d > rule.Window {
		t.Errorf("RetryAfter = %v, want within (0, %v]", d, rule.Window)
	}
}

func TestAllow_SendersIndependent(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	a, b := uuid.NewString(), uuid.NewString()
	l.Allow(ctx, a, rule)
	if ok, _ := l.Allow(ctx, a, rule); ok {
		t.Error("second request from a allowed")
	}
	if ok, _ := l.Allow(ctx, b, rule); !ok {
		t.Error("first request from b throttled")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Second}
	sender := uuid.NewString()

	l.Allow(ctx, sender, rule)
	time.Sleep(1100 * time.Millisecond)
	if ok, _ := l.Allow(ctx, sender, rule); !ok {
		t.Error("request after window expiry throttled")
	}
}

func TestRemaining_Unseen(t *testing.T) {
	l := newTestLimiter(t)
	if n, err := l.Remaining(context.Background(), uuid.NewString(), RuleSubmission); err != nil || n != RuleSubmission.Limit {
		t.Errorf("Remaining = %d, %v; want %d, nil", n, err, RuleSubmission.Limit)
	}
}

func TestAllow_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ok, err := l.Allow(context.Background(), "+232", RuleSubmission)
	if !ok {
		t.Error("Allow = false with redis down, want fail open")
	}
	if err == nil {
		t.Error("Allow returned nil error with redis down")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if ok, err := l.Allow(context.Background(), "+232", RuleSubmission); !ok || err != nil {
		t.Errorf("nil Limiter Allow = %v, %v", ok, err)
	}
	if n, _ := l.Remaining(context.Background(), "+232", RuleSubmission); n != RuleSubmission.Limit {
		t.Errorf("nil Limiter Remaining = %d", n)
	}
}
