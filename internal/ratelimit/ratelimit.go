// Package ratelimit implements a per-agent sliding-window rate limiter. A
// single mutex guards the map of per-agent timestamp slices, keeping
// prune, check, and record atomic relative to each other.
package ratelimit

import (
	"sync"
	"time"
)

// window is the sliding-window duration.
const window = 60 * time.Second

// Limiter tracks invocation timestamps per agent.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// New creates an empty rate limiter.
func New() *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check prunes expired entries for agent, then reports whether the
// remaining count is below limit. limit <= 0 disables the check
// (always true).
func (l *Limiter) Check(agent string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := l.prune(agent)
	return len(pruned) < limit
}

// Record appends the current timestamp for agent. Must be called only
// after a successful dispatch — failures do not consume quota.
func (l *Limiter) Record(agent string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := l.prune(agent)
	l.entries[agent] = append(pruned, l.now())
}

// Usage returns the pruned count of invocations within the current window.
func (l *Limiter) Usage(agent string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(agent))
}

// CheckAndRecord performs an atomic check-then-record: if usage is below
// limit, the invocation is recorded and true is returned; otherwise the
// limiter is left unchanged and false is returned. Provided for callers
// that don't need to give the slot back on a later failure; the request
// pipeline uses Reserve/Release instead, since a dispatch that fails after
// the slot is taken must not consume quota.
func (l *Limiter) CheckAndRecord(agent string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		l.entries[agent] = append(l.prune(agent), l.now())
		return true
	}
	pruned := l.prune(agent)
	if len(pruned) >= limit {
		l.entries[agent] = pruned
		return false
	}
	l.entries[agent] = append(pruned, l.now())
	return true
}

// Reserve atomically checks and records a slot for agent in one critical
// section, exactly like CheckAndRecord, but also returns the timestamp it
// recorded so a caller whose subsequent work fails can give the slot back
// with Release. limit <= 0 disables the check and always reserves.
func (l *Limiter) Reserve(agent string, limit int) (ok bool, token time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := l.prune(agent)
	if limit > 0 && len(pruned) >= limit {
		l.entries[agent] = pruned
		return false, time.Time{}
	}
	token = l.now()
	l.entries[agent] = append(pruned, token)
	return true, token
}

// Release removes the single reservation timestamp previously returned by
// Reserve, used when the work that consumed the slot ultimately failed and
// should not count against the agent's quota. A no-op if token is no
// longer present (e.g. already pruned).
func (l *Limiter) Release(agent string, token time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[agent]
	for i, t := range entries {
		if t.Equal(token) {
			l.entries[agent] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// prune must be called with l.mu held. It drops timestamps older than the
// window and stores the pruned slice back, returning it.
func (l *Limiter) prune(agent string) []time.Time {
	cutoff := l.now().Add(-window)
	existing := l.entries[agent]
	kept := existing[:0:0]
	for _, t := range existing {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.entries[agent] = kept
	return kept
}
