package service

import (
	"sort"
	"sync"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// DeadlockCycle records one detected cycle in the lock wait-for graph.
type DeadlockCycle struct {
	DetectedAt  time.Time
	Holders     []string
	ResolvedKey string // empty when auto-resolution is disabled
}

// DeadlockService periodically walks the wait-for graph built from the lock
// service's holder and blocked-waiter metadata, and optionally breaks
// cycles by evicting the youngest participant's lease.
type DeadlockService struct {
	cfg     config.DeadlockConfig
	locks   ports.LockIntrospector
	metrics ports.MetricsSink
	log     zerolog.Logger

	mu      sync.Mutex
	history []DeadlockCycle

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewDeadlockService creates the detector. Call Start to begin scanning.
func NewDeadlockService(cfg config.DeadlockConfig, locks ports.LockIntrospector, metrics ports.MetricsSink, log zerolog.Logger) *DeadlockService {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	return &DeadlockService{
		cfg:     cfg,
		locks:   locks,
		metrics: metrics,
		log:     log,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the periodic scan until Stop.
func (s *DeadlockService) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				s.Scan()
			}
		}
	}()
}

// Stop halts the scanner and waits for it to exit.
func (s *DeadlockService) Stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// Scan performs one wait-for-graph analysis pass and returns the cycles
// found. Exported so tests and operators can trigger it directly.
func (s *DeadlockService) Scan() []DeadlockCycle {
	snap := s.locks.Snapshot()

	// waitFor maps holder -> holders it waits on; heldKeys maps holder ->
	// keys it currently holds (for victim eviction).
	waitFor := make(map[string][]string)
	heldKeys := make(map[string][]string)
	acquired := make(map[string]time.Time)

	for key, lease := range snap.Holders {
		heldKeys[lease.Holder] = append(heldKeys[lease.Holder], key)
		if t, ok := acquired[lease.Holder]; !ok || lease.AcquiredAt.After(t) {
			acquired[lease.Holder] = lease.AcquiredAt
		}
	}
	for key, waiters := range snap.Waiters {
		lease, held := snap.Holders[key]
		if !held {
			continue
		}
		for _, w := range waiters {
			if w.Holder == lease.Holder {
				continue
			}
			waitFor[w.Holder] = append(waitFor[w.Holder], lease.Holder)
		}
	}

	if s.cfg.MaxWait > 0 {
		cutoff := time.Now().Add(-s.cfg.MaxWait)
		for key, waiters := range snap.Waiters {
			for _, w := range waiters {
				if w.Since.Before(cutoff) {
					s.log.Warn().
						Str("key", key).
						Str("holder", w.Holder).
						Time("waiting_since", w.Since).
						Msg("lock waiter exceeded max wait")
				}
			}
		}
	}

	cycles := findCycles(waitFor)
	var out []DeadlockCycle
	for _, cycle := range cycles {
		rec := DeadlockCycle{DetectedAt: time.Now(), Holders: cycle}
		s.log.Error().
			Strs("holders", cycle).
			Msg("deadlock detected in lock wait-for graph")
		if s.metrics != nil {
			s.metrics.IncDeadlock()
		}

		if s.cfg.AutoResolve {
			victim := youngest(cycle, acquired)
			for _, key := range heldKeys[victim] {
				if s.locks.ForceRelease(key) {
					rec.ResolvedKey = key
					s.log.Warn().
						Str("victim", victim).
						Str("key", key).
						Msg("deadlock auto-resolved, lease evicted")
					break
				}
			}
		}
		out = append(out, rec)
		s.record(rec)
	}
	return out
}

// History returns the recorded cycles, newest last.
func (s *DeadlockService) History() []DeadlockCycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadlockCycle(nil), s.history...)
}

func (s *DeadlockService) record(rec DeadlockCycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > s.cfg.HistoryCap {
		s.history = s.history[len(s.history)-s.cfg.HistoryCap:]
	}
}

// findCycles runs a colored DFS over the wait-for graph and returns each
// distinct cycle once.
func findCycles(waitFor map[string][]string) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string
	var cycles [][]string
	seen := make(map[string]bool)

	nodes := make([]string, 0, len(waitFor))
	for n := range waitFor {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var visit func(n string)
	visit = func(n string) {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range waitFor[n] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Unwind the stack back to next: that slice is the cycle.
				var cycle []string
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append([]string{stack[i]}, cycle...)
					if stack[i] == next {
						break
					}
				}
				key := canonicalCycle(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// canonicalCycle produces an order-insensitive key for deduplication.
func canonicalCycle(cycle []string) string {
	sorted := append([]string(nil), cycle...)
	sort.Strings(sorted)
	key := ""
	for _, h := range sorted {
		key += h + "|"
	}
	return key
}

// youngest picks the cycle participant with the most recent lease.
func youngest(cycle []string, acquired map[string]time.Time) string {
	victim := cycle[0]
	for _, h := range cycle[1:] {
		if acquired[h].After(acquired[victim]) {
			victim = h
		}
	}
	return victim
}
