// Package metrics implements an in-memory process counters registry,
// tracking request totals and per-agent/per-provider breakdowns. Counters
// accumulate under a single mutex, keyed by request dimension.
package metrics

import (
	"sync"
	"time"
)

// Registry holds process-local request counters.
type Registry struct {
	mu         sync.Mutex
	startedAt  time.Time
	total      int64
	ok         int64
	errors     int64
	byAgent    map[string]*counter
	byProvider map[string]*counter
}

type counter struct {
	Total int64
	OK    int64
	Error int64
}

// New creates a metrics registry; startedAt anchors the uptime calculation.
func New() *Registry {
	return &Registry{
		startedAt:  time.Now(),
		byAgent:    make(map[string]*counter),
		byProvider: make(map[string]*counter),
	}
}

// Record bumps the counters for one completed request. ok reflects the
// status that was actually sent to the client; callers should record after
// the response has been prepared, not before.
func (r *Registry) Record(agent, provider string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if ok {
		r.ok++
	} else {
		r.errors++
	}

	if agent != "" {
		c := r.byAgent[agent]
		if c == nil {
			c = &counter{}
			r.byAgent[agent] = c
		}
		bump(c, ok)
	}

	if provider != "" {
		c := r.byProvider[provider]
		if c == nil {
			c = &counter{}
			r.byProvider[provider] = c
		}
		bump(c, ok)
	}
}

func bump(c *counter, ok bool) {
	c.Total++
	if ok {
		c.OK++
	} else {
		c.Error++
	}
}

// Snapshot is the exported, immutable view returned by Snapshot().
type Snapshot struct {
	UptimeSeconds int64                `json:"uptime_seconds"`
	TotalRequests int64                `json:"total_requests"`
	TotalOK       int64                `json:"total_ok"`
	TotalErrors   int64                `json:"total_errors"`
	ByAgent       map[string]counter   `json:"by_agent"`
	ByProvider    map[string]counter   `json:"by_provider"`
}

// Snapshot takes a consistent view of all counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAgent := make(map[string]counter, len(r.byAgent))
	for k, v := range r.byAgent {
		byAgent[k] = *v
	}
	byProvider := make(map[string]counter, len(r.byProvider))
	for k, v := range r.byProvider {
		byProvider[k] = *v
	}

	return Snapshot{
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		TotalRequests: r.total,
		TotalOK:       r.ok,
		TotalErrors:   r.errors,
		ByAgent:       byAgent,
		ByProvider:    byProvider,
	}
}

// DistinctAgents returns the count of distinct agents seen in by_agent.
func (s Snapshot) DistinctAgents() int {
	return len(s.ByAgent)
}
