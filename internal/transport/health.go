package transport

import (
	"sync"
	"time"
)

// EndpointHealth is a point-in-time snapshot of dispatch outcomes for one
// backend operation.
type EndpointHealth struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	TotalFailures       int64     `json:"total_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
}

// HealthTracker records per-endpoint dispatch outcomes for the health
// surface. It is observational only: it never gates a request.
type HealthTracker struct {
	mu               sync.RWMutex
	endpoints        map[string]*EndpointHealth
	failureThreshold int
}

// NewHealthTracker reports an endpoint unhealthy once it accumulates
// failureThreshold consecutive failures.
func NewHealthTracker(failureThreshold int) *HealthTracker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &HealthTracker{
		endpoints:        make(map[string]*EndpointHealth),
		failureThreshold: failureThreshold,
	}
}

func (ht *HealthTracker) get(name string) *EndpointHealth {
	if h, ok := ht.endpoints[name]; ok {
		return h
	}
	h := &EndpointHealth{Healthy: true}
	ht.endpoints[name] = h
	return h
}

// RecordSuccess notes a successful dispatch for the endpoint.
func (ht *HealthTracker) RecordSuccess(name string) {
	if ht == nil {
		return
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()
	h := ht.get(name)
	h.TotalSuccesses++
	h.ConsecutiveFailures = 0
	h.Healthy = true
}

// RecordFailure notes a failed dispatch for the endpoint.
func (ht *HealthTracker) RecordFailure(name string) {
	if ht == nil {
		return
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()
	h := ht.get(name)
	h.TotalFailures++
	h.ConsecutiveFailures++
	h.LastFailureAt = time.Now()
	if h.ConsecutiveFailures >= ht.failureThreshold {
		h.Healthy = false
	}
}

// Snapshot returns a copy of all per-endpoint health records.
func (ht *HealthTracker) Snapshot() map[string]EndpointHealth {
	if ht == nil {
		return nil
	}
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]EndpointHealth, len(ht.endpoints))
	for name, h := range ht.endpoints {
		out[name] = *h
	}
	return out
}
