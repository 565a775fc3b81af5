package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis layout for SystemMetrics:
//
//	metrics:system              hash, lifetime totals
//	metrics:daily:<yyyy-mm-dd>  hash, per-day totals (UTC), expires after DailyTTL
const (
	SystemKey   = "metrics:system"
	DailyPrefix = "metrics:daily:"
	DailyTTL    = 48 * time.Hour
)

// Counter names.
const (
	MetricTotalVerifications = "total_verifications"
	MetricQueueDepth         = "queue_depth"
	MetricTotalReports       = "total_reports"
	MetricAutoReplies        = "auto_replies"
	MetricEscalations        = "escalations"
	MetricModerationResolved = "moderation_resolved"
)

// SystemMetrics is the dashboard view of the counters.
type SystemMetrics struct {
	TotalVerifications int64 `json:"totalVerifications"`
	VerificationsToday int64 `json:"verificationsToday"`
	QueueDepth         int64 `json:"queueDepth"`
	TotalReports       int64 `json:"totalReports"`
	AutoReplies        int64 `json:"autoReplies"`
	Escalations        int64 `json:"escalations"`
	ModerationResolved int64 `json:"moderationResolved"`
}

func snapshotFrom(total, today map[string]int64) SystemMetrics {
	return SystemMetrics{
		TotalVerifications: total[MetricTotalVerifications],
		VerificationsToday: today[MetricTotalVerifications],
		QueueDepth:         total[MetricQueueDepth],
		TotalReports:       total[MetricTotalReports],
		AutoReplies:        total[MetricAutoReplies],
		Escalations:        total[MetricEscalations],
		ModerationResolved: total[MetricModerationResolved],
	}
}

// DailyKey returns the per-day hash key for t.
func DailyKey(t time.Time) string {
	return DailyPrefix + t.UTC().Format("2006-01-02")
}

// Counter stores SystemMetrics in Redis. HINCRBY is atomic, so concurrent
// pipeline invocations never lose increments.
type Counter struct {
	client *redis.Client
	now    func() time.Time
}

// NewCounter creates a Counter backed by the given Redis client.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client, now: time.Now}
}

// Increment adds delta to the named lifetime and daily counters.
func (c *Counter) Increment(ctx context.Context, name string, delta int64) error {
	daily := DailyKey(c.now())
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, SystemKey, name, delta)
		pipe.HIncrBy(ctx, daily, name, delta)
		pipe.Expire(ctx, daily, DailyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("metrics: increment %s: %w", name, err)
	}
	return nil
}

// Set overwrites a lifetime counter. It is used to reconcile gauges such as
// queue depth against the authoritative store.
func (c *Counter) Set(ctx context.Context, name string, value int64) error {
	if err := c.client.HSet(ctx, SystemKey, name, value).Err(); err != nil {
		return fmt.Errorf("metrics: set %s: %w", name, err)
	}
	return nil
}

// Snapshot reads all counters.
func (c *Counter) Snapshot(ctx context.Context) (SystemMetrics, error) {
	pipe := c.client.Pipeline()
	totalCmd := pipe.HGetAll(ctx, SystemKey)
	todayCmd := pipe.HGetAll(ctx, DailyKey(c.now()))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return SystemMetrics{}, fmt.Errorf("metrics: snapshot: %w", err)
	}
	return snapshotFrom(parseFields(totalCmd.Val()), parseFields(todayCmd.Val())), nil
}

func parseFields(m map[string]string) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

// MemoryCounter is an in-process Counter for tests and the offline CLI.
type MemoryCounter struct {
	mu    sync.Mutex
	total map[string]int64
	daily map[string]map[string]int64
	now   func() time.Time
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		total: make(map[string]int64),
		daily: make(map[string]map[string]int64),
		now:   time.Now,
	}
}

func (m *MemoryCounter) Increment(_ context.Context, name string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total[name] += delta
	key := DailyKey(m.now())
	if m.daily[key] == nil {
		m.daily[key] = make(map[string]int64)
	}
	m.daily[key][name] += delta
	return nil
}

func (m *MemoryCounter) Set(_ context.Context, name string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total[name] = value
	return nil
}

func (m *MemoryCounter) Snapshot(_ context.Context) (SystemMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshotFrom(m.total, m.daily[DailyKey(m.now())]), nil
}
