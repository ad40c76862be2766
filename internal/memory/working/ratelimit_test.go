package working

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterFidelity(t *testing.T) {
	store := NewLocalStore()
	rl := NewRateLimiter(store)
	ctx := context.Background()

	accepted := 0
	for i := 0; i < 10; i++ {
		ok, _, err := rl.Allow(ctx, "ratelimit:sender:a@example.com", 5, time.Hour)
		assert.NoError(t, err)
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 5, accepted, "accepted count must never exceed the configured limit")
}

func TestRateLimiterSeparateKeysIndependent(t *testing.T) {
	store := NewLocalStore()
	rl := NewRateLimiter(store)
	ctx := context.Background()

	okA, _, _ := rl.Allow(ctx, "ratelimit:sender:a@example.com", 1, time.Hour)
	okB, _, _ := rl.Allow(ctx, "ratelimit:sender:b@example.com", 1, time.Hour)
	assert.True(t, okA)
	assert.True(t, okB)
}
