package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// MaxCallHistory bounds the rate-limit ring buffer (§3 CallEvent).
const MaxCallHistory = 5000

// RateLimitMonitor is a mutex-guarded ring buffer of CallEvents, newest
// appended, oldest evicted on overflow.
type RateLimitMonitor struct {
	mu     sync.RWMutex
	events []domain.CallEvent
}

// NewRateLimitMonitor creates an empty monitor.
func NewRateLimitMonitor() *RateLimitMonitor {
	return &RateLimitMonitor{events: make([]domain.CallEvent, 0, MaxCallHistory)}
}

// RecordCall appends a CallEvent, evicting the oldest entry if the buffer
// is at capacity. Called from every outbound adapter regardless of outcome.
func (m *RateLimitMonitor) RecordCall(api, callType string, success bool, latencyMs float64, rateLimitRemaining *int) {
	ev := domain.CallEvent{
		APIName:            api,
		CallType:           callType,
		Timestamp:          time.Now(),
		Success:            success,
		LatencyMs:          latencyMs,
		RateLimitRemaining: rateLimitRemaining,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if len(m.events) > MaxCallHistory {
		m.events = m.events[len(m.events)-MaxCallHistory:]
	}
}

// Len returns the current buffer length (invariant 4: always <= MaxCallHistory).
func (m *RateLimitMonitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// CallActivity aggregates per-provider, per-call-type counts and a
// friendly display name for events within the given window.
type CallActivity struct {
	APIName         string
	DisplayName     string
	TotalCalls      int
	SuccessCalls    int
	FailedCalls     int
	ByCallType      map[string]int
	LastCallAt      time.Time
}

// GetCallActivity aggregates events with Timestamp >= now - window into
// per-provider activity summaries.
func (m *RateLimitMonitor) GetCallActivity(window time.Duration) map[string]*CallActivity {
	cutoff := time.Now().Add(-window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]*CallActivity{}
	for _, ev := range m.events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		act, ok := out[ev.APIName]
		if !ok {
			act = &CallActivity{
				APIName:     ev.APIName,
				DisplayName: displayName(ev.APIName),
				ByCallType:  map[string]int{},
			}
			out[ev.APIName] = act
		}
		act.TotalCalls++
		if ev.Success {
			act.SuccessCalls++
		} else {
			act.FailedCalls++
		}
		act.ByCallType[ev.CallType]++
		if ev.Timestamp.After(act.LastCallAt) {
			act.LastCallAt = ev.Timestamp
		}
	}
	return out
}

// IsStale reports whether the given API's last recorded call is older than
// the staleness threshold (default 60 minutes, per §4.9).
func (m *RateLimitMonitor) IsStale(api string, threshold time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last time.Time
	found := false
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].APIName == api {
			last = m.events[i].Timestamp
			found = true
			break
		}
	}
	if !found {
		return true
	}
	return time.Since(last) > threshold
}

// displayName turns an internal api key ("broker_alpaca") into a friendly
// label ("Broker Alpaca").
func displayName(api string) string {
	parts := strings.Split(api, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
