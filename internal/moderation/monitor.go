package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
)

const (
	DefaultMonitorInterval = 30 * time.Second
	DefaultSLA             = 2 * time.Hour
)

// QueueSource reports the state of the pending queue.
type QueueSource interface {
	CountPending(ctx context.Context) (int64, error)
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

// GaugeSink stores the reconciled queue depth.
type GaugeSink interface {
	Set(ctx context.Context, name string, value int64) error
}

// Monitor periodically reconciles the queue depth counter with storage and
// warns when the oldest pending item has waited longer than the SLA.
type Monitor struct {
	source   QueueSource
	sink     GaugeSink
	interval time.Duration
	sla      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewMonitor creates a Monitor. Zero durations use the defaults.
func NewMonitor(source QueueSource, sink GaugeSink, interval, sla time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if sla <= 0 {
		sla = DefaultSLA
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		source:   source,
		sink:     sink,
		interval: interval,
		sla:      sla,
		logger:   logger.With("component", "moderation-monitor"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("queue monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation pass and returns the pending count.
func (m *Monitor) Tick(ctx context.Context) int64 {
	n, err := m.source.CountPending(ctx)
	if err != nil {
		m.logger.Error("count pending failed", "error", err)
		return -1
	}
	metrics.ModerationQueueDepth.Set(float64(n))
	if m.sink != nil {
		if err := m.sink.Set(ctx, metrics.MetricQueueDepth, n); err != nil {
			m.logger.Warn("queue depth reconcile failed", "error", err)
		}
	}

	oldest, ok, err := m.source.OldestPending(ctx)
	if err != nil {
		m.logger.Error("oldest pending lookup failed", "error", err)
		return n
	}
	if ok {
		if age := m.now().Sub(oldest); age > m.sla {
			m.logger.Warn("moderation SLA exceeded",
				"pending", n,
				"oldest_age", age.Round(time.Second).String(),
				"sla", m.sla.String())
		}
	}
	return n
}
