package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"acquiring-gateway/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the fencing token still matches,
// so an expired-and-reacquired key is never released by the old holder.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only for the current token holder.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// LockStore implements ports.LockService on Redis SET NX leases.
// Waiters poll with a bounded delay and the first poll that finds the key
// free wins, so grants are not ordered by arrival. The local wait registry
// records waiters per key for the deadlock detector.
type LockStore struct {
	client     *goredis.Client
	prefix     string
	retryDelay time.Duration
	maxRetries int // 0 = bounded by wait only

	mu      sync.Mutex
	holders map[string]ports.LockLease
	waiters map[string][]ports.LockWaiter
}

// NewLockStore creates a Redis-backed lock service. maxRetries caps the
// polling attempts per acquire; zero leaves the wait deadline in charge.
func NewLockStore(client *goredis.Client, retryDelay time.Duration, maxRetries int) *LockStore {
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	return &LockStore{
		client:     client,
		prefix:     "lock:",
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		holders:    make(map[string]ports.LockLease),
		waiters:    make(map[string][]ports.LockWaiter),
	}
}

// Acquire blocks up to wait for an exclusive lease on key.
func (s *LockStore) Acquire(ctx context.Context, key, holder string, lease, wait time.Duration) (*ports.LockLease, error) {
	token := uuid.New().String()
	redisKey := s.prefix + key
	deadline := time.Now().Add(wait)

	s.addWaiter(key, holder)
	defer s.removeWaiter(key, holder)

	for attempt := 0; ; attempt++ {
		ok, err := s.client.SetNX(ctx, redisKey, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock setnx: %w", err)
		}
		if ok {
			now := time.Now()
			l := ports.LockLease{
				Key:        key,
				Holder:     holder,
				Token:      token,
				AcquiredAt: now,
				ExpiresAt:  now.Add(lease),
			}
			s.mu.Lock()
			s.holders[key] = l
			s.mu.Unlock()
			return &l, nil
		}

		if time.Now().After(deadline) {
			return nil, ports.ErrLockTimeout
		}
		if s.maxRetries > 0 && attempt >= s.maxRetries {
			return nil, ports.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

// Release deletes the lease if it is still ours. Idempotent.
func (s *LockStore) Release(ctx context.Context, lease *ports.LockLease) error {
	if lease == nil {
		return nil
	}
	_, err := releaseScript.Run(ctx, s.client, []string{s.prefix + lease.Key}, lease.Token).Result()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	s.dropHolder(lease.Key, lease.Token)
	return nil
}

// Renew extends a live lease by the given duration.
func (s *LockStore) Renew(ctx context.Context, lease *ports.LockLease, extend time.Duration) (bool, error) {
	res, err := renewScript.Run(ctx, s.client, []string{s.prefix + lease.Key}, lease.Token, extend.Milliseconds()).Int()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("redis lock renew: %w", err)
	}
	if res == 1 {
		s.mu.Lock()
		if l, ok := s.holders[lease.Key]; ok && l.Token == lease.Token {
			l.ExpiresAt = time.Now().Add(extend)
			s.holders[lease.Key] = l
		}
		s.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// Snapshot returns the locally known holders and waiters. Only leases taken
// through this process appear; the deadlock detector runs per node.
func (s *LockStore) Snapshot() ports.LockSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ports.LockSnapshot{
		Holders: make(map[string]ports.LockLease, len(s.holders)),
		Waiters: make(map[string][]ports.LockWaiter, len(s.waiters)),
	}
	now := time.Now()
	for k, l := range s.holders {
		if l.ExpiresAt.After(now) {
			snap.Holders[k] = l
		}
	}
	for k, ws := range s.waiters {
		snap.Waiters[k] = append([]ports.LockWaiter(nil), ws...)
	}
	return snap
}

// ForceRelease evicts the live lease on key regardless of holder.
func (s *LockStore) ForceRelease(key string) bool {
	s.mu.Lock()
	lease, ok := s.holders[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := releaseScript.Run(ctx, s.client, []string{s.prefix + key}, lease.Token).Int()
	if err != nil || res == 0 {
		return false
	}
	s.dropHolder(key, lease.Token)
	return true
}

func (s *LockStore) addWaiter(key, holder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[key] = append(s.waiters[key], ports.LockWaiter{Holder: holder, Since: time.Now()})
}

func (s *LockStore) removeWaiter(key, holder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[key]
	for i, w := range ws {
		if w.Holder == holder {
			s.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}
}

func (s *LockStore) dropHolder(key, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.holders[key]; ok && l.Token == token {
		delete(s.holders, key)
	}
}
