// Package ingest implements the ingestion pipeline's hot path (§4.F): plugin
// linkage filtering, bulk persistence, throttled webhook/broadcast fan-out,
// and deduplicated rule evaluation.
package ingest

import (
	"sync"
	"time"
)

// ThrottleGate is a process-wide per-key admission gate: fire(key) admits
// if at least interval has elapsed since the last admitted fire for that
// key (§4.F.1/§4.F.2). Memory is bounded by the number of distinct keys
// ever seen and grows monotonically until process restart, matching the
// source's documented behavior.
type ThrottleGate struct {
	mu       sync.Mutex
	lastFire map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

// NewThrottleGate constructs a gate with a fixed admission interval.
func NewThrottleGate(interval time.Duration) *ThrottleGate {
	return &ThrottleGate{
		lastFire: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Admit reports whether key may fire now, recording the fire time if so.
func (g *ThrottleGate) Admit(key string) bool {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastFire[key]
	if ok && now.Sub(last) < g.interval {
		return false
	}
	g.lastFire[key] = now
	return true
}

// AdmitSet applies Admit across a set of keys and returns those admitted,
// used by the broadcast throttle (§4.F.2) which reports the whole
// admitted set at once.
func (g *ThrottleGate) AdmitSet(keys []string) map[string]bool {
	admitted := make(map[string]bool)
	for _, k := range keys {
		if g.Admit(k) {
			admitted[k] = true
		}
	}
	return admitted
}

// Clamp bounds a configured interval (in seconds) to [min,max], matching
// §4.F.1's "bounded to [1, 60]". The broadcast gate's interval is not
// clamped.
func Clamp(seconds, min, max float64) float64 {
	if seconds < min {
		return min
	}
	if seconds > max {
		return max
	}
	return seconds
}

// DefaultSensorWebhookInterval is SENSOR_WEBHOOK_INTERVAL's default (§4.F.1).
const DefaultSensorWebhookInterval = 5 * time.Second

// DefaultBroadcastInterval is BROADCAST_INTERVAL's default (§4.F.2).
const DefaultBroadcastInterval = 200 * time.Millisecond
