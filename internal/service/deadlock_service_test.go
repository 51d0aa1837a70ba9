package service

import (
	"sync"
	"testing"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIntrospector serves a fixed lock snapshot and records evictions.
type fakeIntrospector struct {
	mu       sync.Mutex
	snapshot ports.LockSnapshot
	released []string
}

func (f *fakeIntrospector) Snapshot() ports.LockSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeIntrospector) ForceRelease(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key)
	return true
}

// cycleSnapshot builds the classic two-holder deadlock: w1 holds k1 and
// waits on k2, w2 holds k2 and waits on k1. w2's lease is younger.
func cycleSnapshot() ports.LockSnapshot {
	base := time.Now().Add(-time.Minute)
	return ports.LockSnapshot{
		Holders: map[string]ports.LockLease{
			"k1": {Key: "k1", Holder: "w1", Token: "t1", AcquiredAt: base, ExpiresAt: base.Add(time.Hour)},
			"k2": {Key: "k2", Holder: "w2", Token: "t2", AcquiredAt: base.Add(10 * time.Second), ExpiresAt: base.Add(time.Hour)},
		},
		Waiters: map[string][]ports.LockWaiter{
			"k2": {{Holder: "w1", Since: base.Add(20 * time.Second)}},
			"k1": {{Holder: "w2", Since: base.Add(20 * time.Second)}},
		},
	}
}

func TestDeadlockService_DetectsCycle(t *testing.T) {
	locks := &fakeIntrospector{snapshot: cycleSnapshot()}
	s := NewDeadlockService(config.DeadlockConfig{
		Interval:    time.Hour, // scans triggered manually
		AutoResolve: false,
		HistoryCap:  10,
	}, locks, nil, zerolog.Nop())

	cycles := s.Scan()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"w1", "w2"}, cycles[0].Holders)
	assert.Empty(t, cycles[0].ResolvedKey)
	assert.Empty(t, locks.released, "auto-resolution disabled")
}

func TestDeadlockService_AutoResolveEvictsYoungest(t *testing.T) {
	locks := &fakeIntrospector{snapshot: cycleSnapshot()}
	s := NewDeadlockService(config.DeadlockConfig{
		Interval:    time.Hour,
		AutoResolve: true,
		HistoryCap:  10,
	}, locks, nil, zerolog.Nop())

	cycles := s.Scan()
	require.Len(t, cycles, 1)

	// w2 acquired later, so its lease (k2) is the victim.
	require.Len(t, locks.released, 1)
	assert.Equal(t, "k2", locks.released[0])
	assert.Equal(t, "k2", cycles[0].ResolvedKey)
}

func TestDeadlockService_NoCycleNoFindings(t *testing.T) {
	base := time.Now()
	locks := &fakeIntrospector{snapshot: ports.LockSnapshot{
		Holders: map[string]ports.LockLease{
			"k1": {Key: "k1", Holder: "w1", AcquiredAt: base, ExpiresAt: base.Add(time.Hour)},
		},
		Waiters: map[string][]ports.LockWaiter{
			"k1": {{Holder: "w2", Since: base}},
		},
	}}
	s := NewDeadlockService(config.DeadlockConfig{Interval: time.Hour, HistoryCap: 10}, locks, nil, zerolog.Nop())

	assert.Empty(t, s.Scan(), "a plain waiter chain is not a deadlock")
}

func TestDeadlockService_ThreeWayCycle(t *testing.T) {
	base := time.Now()
	locks := &fakeIntrospector{snapshot: ports.LockSnapshot{
		Holders: map[string]ports.LockLease{
			"a": {Key: "a", Holder: "w1", AcquiredAt: base, ExpiresAt: base.Add(time.Hour)},
			"b": {Key: "b", Holder: "w2", AcquiredAt: base.Add(time.Second), ExpiresAt: base.Add(time.Hour)},
			"c": {Key: "c", Holder: "w3", AcquiredAt: base.Add(2 * time.Second), ExpiresAt: base.Add(time.Hour)},
		},
		Waiters: map[string][]ports.LockWaiter{
			"b": {{Holder: "w1", Since: base}},
			"c": {{Holder: "w2", Since: base}},
			"a": {{Holder: "w3", Since: base}},
		},
	}}
	s := NewDeadlockService(config.DeadlockConfig{Interval: time.Hour, AutoResolve: true, HistoryCap: 10}, locks, nil, zerolog.Nop())

	cycles := s.Scan()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"w1", "w2", "w3"}, cycles[0].Holders)
	require.Len(t, locks.released, 1)
	assert.Equal(t, "c", locks.released[0], "youngest holder's lease evicted")
}

func TestDeadlockService_HistoryCapped(t *testing.T) {
	locks := &fakeIntrospector{snapshot: cycleSnapshot()}
	s := NewDeadlockService(config.DeadlockConfig{Interval: time.Hour, HistoryCap: 3}, locks, nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		s.Scan()
	}
	assert.Len(t, s.History(), 3)
}
