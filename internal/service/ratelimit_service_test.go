package service

import (
	"sync"
	"testing"
	"time"

	"acquiring-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(policies map[string]config.RatePolicy) (*RateLimitService, *time.Time) {
	s := NewRateLimitService(policies)
	current := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return current }
	return s, &current
}

func TestRateLimitService_BurstThenDeny(t *testing.T) {
	s, _ := newTestLimiter(map[string]config.RatePolicy{
		"payment_init": {Rate: 20, Burst: 40, Scope: "merchant"},
	})

	for i := 0; i < 40; i++ {
		d := s.TryAcquire("payment_init", "demo-team", 1)
		require.True(t, d.Allowed, "request %d within burst", i+1)
	}

	d := s.TryAcquire("payment_init", "demo-team", 1)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Second)
}

func TestRateLimitService_LazyRefill(t *testing.T) {
	s, current := newTestLimiter(map[string]config.RatePolicy{
		"general": {Rate: 10, Burst: 10, Scope: "merchant"},
	})

	for i := 0; i < 10; i++ {
		require.True(t, s.TryAcquire("general", "m1", 1).Allowed)
	}
	require.False(t, s.TryAcquire("general", "m1", 1).Allowed)

	// Half a second refills five tokens.
	*current = current.Add(500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.True(t, s.TryAcquire("general", "m1", 1).Allowed, "refilled token %d", i+1)
	}
	assert.False(t, s.TryAcquire("general", "m1", 1).Allowed)
}

func TestRateLimitService_RefillClampedToBurst(t *testing.T) {
	s, current := newTestLimiter(map[string]config.RatePolicy{
		"general": {Rate: 100, Burst: 5, Scope: "merchant"},
	})

	require.True(t, s.TryAcquire("general", "m1", 1).Allowed)

	// A long idle period must not accumulate beyond capacity.
	*current = current.Add(time.Hour)
	for i := 0; i < 5; i++ {
		require.True(t, s.TryAcquire("general", "m1", 1).Allowed)
	}
	assert.False(t, s.TryAcquire("general", "m1", 1).Allowed)
}

func TestRateLimitService_ScopesAreIndependent(t *testing.T) {
	s, _ := newTestLimiter(map[string]config.RatePolicy{
		"general": {Rate: 1, Burst: 1, Scope: "merchant"},
	})

	require.True(t, s.TryAcquire("general", "team-a", 1).Allowed)
	require.False(t, s.TryAcquire("general", "team-a", 1).Allowed)
	assert.True(t, s.TryAcquire("general", "team-b", 1).Allowed, "other merchant unaffected")
}

func TestRateLimitService_GlobalScopeIgnoresCaller(t *testing.T) {
	s, _ := newTestLimiter(map[string]config.RatePolicy{
		"processing": {Rate: 50, Burst: 2, Scope: "global"},
	})

	require.True(t, s.TryAcquire("processing", "team-a", 1).Allowed)
	require.True(t, s.TryAcquire("processing", "team-b", 1).Allowed)
	assert.False(t, s.TryAcquire("processing", "team-c", 1).Allowed, "global bucket is shared")
}

func TestRateLimitService_UnknownPolicyAllowed(t *testing.T) {
	s, _ := newTestLimiter(nil)
	assert.True(t, s.TryAcquire("no-such-policy", "x", 1).Allowed)
}

func TestRateLimitService_ConcurrentCallersNeverOversubscribe(t *testing.T) {
	s := NewRateLimitService(map[string]config.RatePolicy{
		"general": {Rate: 0.0001, Burst: 100, Scope: "merchant"},
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if s.TryAcquire("general", "m1", 1).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 500 attempts against a capacity-100 bucket with negligible refill.
	assert.Equal(t, 100, allowed)
}
