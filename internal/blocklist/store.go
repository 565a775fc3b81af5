// Package blocklist keeps temporarily blocked senders in Redis. A sender is a
// phone number or, for web chat connects, a client IP. Records are plain
// key-value pairs with TTL-based expiry:
//
//	Key:   block:<sender>
//	Value: <reason>
//	TTL:   block duration
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BlockPrefix is the Redis key prefix for block records.
	BlockPrefix = "block:"

	// StrikesPrefix is the Redis key prefix for strike counters.
	StrikesPrefix = "strikes:"

	// Escalating block durations, applied from the StrikeThreshold-th strike.
	Block15Min  = 15 * time.Minute
	Block1Hour  = 1 * time.Hour
	Block24Hour = 24 * time.Hour

	// StrikesTTL is how long the strike counter lives. After 24h without a
	// new strike the counter resets to zero.
	StrikesTTL = 24 * time.Hour

	// StrikeThreshold is the number of strikes within StrikesTTL that blocks
	// a sender.
	StrikeThreshold = 3
)

// Store manages block records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a block store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Status describes an active block.
type Status struct {
	Blocked   bool          `json:"blocked"`
	Remaining time.Duration `json:"-"`
	Reason    string        `json:"reason,omitempty"`
}

// Check reports whether sender is currently blocked. Redis errors are
// returned so callers can decide how to handle them; Guard fails open.
func (s *Store) Check(ctx context.Context, sender string) (Status, error) {
	key := BlockPrefix + sender

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// The block exists but its TTL is unreadable.
		return Status{Blocked: true, Reason: reason}, nil
	}
	return Status{Blocked: true, Remaining: ttl, Reason: reason}, nil
}

// Block blocks sender for duration with the given reason.
func (s *Store) Block(ctx context.Context, sender string, duration time.Duration, reason string) error {
	if duration <= 0 {
		return fmt.Errorf("blocklist: non-positive duration %s", duration)
	}
	return s.client.Set(ctx, BlockPrefix+sender, reason, duration).Err()
}

// Unblock lifts a block immediately and clears the sender's strikes.
func (s *Store) Unblock(ctx context.Context, sender string) error {
	return s.client.Del(ctx, BlockPrefix+sender, StrikesPrefix+sender).Err()
}

// Strikes returns the sender's strike count within the current window.
func (s *Store) Strikes(ctx context.Context, sender string) (int, error) {
	n, err := s.client.Get(ctx, StrikesPrefix+sender).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// escalationDuration returns the block duration for a strike count at or
// over the threshold.
func escalationDuration(strikes int) time.Duration {
	switch over := strikes - StrikeThreshold; {
	case over <= 0:
		return Block15Min
	case over == 1:
		return Block1Hour
	default:
		return Block24Hour
	}
}

// Strike records one offense for sender. Once StrikeThreshold strikes fall
// inside StrikesTTL the sender is blocked, for longer on every further strike:
//
//	3rd strike  -> 15 minutes
//	4th strike  -> 1 hour
//	5th+ strike -> 24 hours
//
// Returns the applied block duration, or zero when the sender stays unblocked.
func (s *Store) Strike(ctx context.Context, sender, reason string) (time.Duration, error) {
	key := StrikesPrefix + sender

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("blocklist: strike incr: %w", err)
	}

	// TTL only on the first strike so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, StrikesTTL).Err(); err != nil {
			return 0, fmt.Errorf("blocklist: strike expire: %w", err)
		}
	}

	if count < StrikeThreshold {
		return 0, nil
	}
	duration := escalationDuration(int(count))
	if err := s.Block(ctx, sender, duration, reason); err != nil {
		return 0, fmt.Errorf("blocklist: strike block: %w", err)
	}
	return duration, nil
}

// markWindow records that sender was throttled in the window identified by
// key. It returns true only for the first call per window.
func (s *Store) markWindow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, 1, ttl).Result()
}
