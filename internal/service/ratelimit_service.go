package service

import (
	"sync"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"
)

// RateLimitService implements ports.RateLimiter with one token bucket per
// (policy, scope). Refill is lazy: each check credits the time elapsed
// since the bucket's last stamp.
type RateLimitService struct {
	policies map[string]config.RatePolicy

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	policy string
	scope  string
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimitService creates the limiter from the configured policies.
func NewRateLimitService(policies map[string]config.RatePolicy) *RateLimitService {
	if len(policies) == 0 {
		policies = config.DefaultRatePolicies()
	}
	return &RateLimitService{
		policies: policies,
		buckets:  make(map[bucketKey]*bucket),
		now:      time.Now,
	}
}

// TryAcquire takes cost tokens from the (policy, scope) bucket. Unknown
// policies are allowed through: an unconfigured endpoint is not a reason
// to refuse traffic.
func (s *RateLimitService) TryAcquire(policy, scope string, cost float64) ports.RateDecision {
	p, ok := s.policies[policy]
	if !ok {
		return ports.RateDecision{Allowed: true}
	}
	if p.Scope == "global" {
		scope = "global"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{policy: policy, scope: scope}
	b, ok := s.buckets[key]
	now := s.now()
	if !ok {
		b = &bucket{tokens: p.Burst, lastRefill: now}
		s.buckets[key] = b
	}

	// Lazy refill, clamped to capacity.
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * p.Rate
		if b.tokens > p.Burst {
			b.tokens = p.Burst
		}
		b.lastRefill = now
	}

	if b.tokens >= cost {
		b.tokens -= cost
		return ports.RateDecision{Allowed: true}
	}

	deficit := cost - b.tokens
	retryAfter := time.Duration(deficit / p.Rate * float64(time.Second))
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return ports.RateDecision{Allowed: false, RetryAfter: retryAfter}
}
