package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verification"
)

// RetryPolicy bounds storage write retries.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // doubled after each failed attempt
}

// DefaultRetryPolicy makes three attempts starting at 200ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, moderation.ErrAlreadyPending) ||
		errors.Is(err, verification.ErrDuplicateID) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// retry runs fn until it succeeds, returns a permanent error, the attempts
// are used up or ctx is done.
func (p RetryPolicy) retry(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || permanent(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		metrics.StorageRetries.Inc()
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
