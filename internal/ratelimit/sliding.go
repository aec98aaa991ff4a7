package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding is a sorted-set sliding window counter. Each allowed event is a
// member scored by its timestamp; events older than the window are trimmed
// before counting.
type Sliding struct {
	Client *redis.Client
	Window time.Duration
	Max    int64

	// now is overridable in tests.
	now func() time.Time
}

// NewSliding builds a limiter allowing max events per window for each key.
func NewSliding(client *redis.Client, window time.Duration, max int64) *Sliding {
	return &Sliding{Client: client, Window: window, Max: max, now: time.Now}
}

// Allow records one event for key and reports whether it fits the window.
func (s *Sliding) Allow(ctx context.Context, key string) (bool, error) {
	now := s.clock()
	cutoff := now.Add(-s.Window)
	full := "rl:" + key

	pipe := s.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, full, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, full)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if count.Val() >= s.Max {
		return false, nil
	}

	pipe = s.Client.TxPipeline()
	pipe.ZAdd(ctx, full, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, full, s.Window)
	_, err := pipe.Exec(ctx)
	return true, err
}

// Remaining reports how many events key may still spend in the current window.
func (s *Sliding) Remaining(ctx context.Context, key string) (int64, error) {
	cutoff := s.clock().Add(-s.Window)
	full := "rl:" + key
	pipe := s.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, full, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, full)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	left := s.Max - count.Val()
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (s *Sliding) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
