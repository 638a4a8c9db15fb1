package feed

import (
	"fmt"
	"sync"
	"time"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthMetrics is a point-in-time copy of the monitor's counters.
type HealthMetrics struct {
	Connections    uint64
	Disconnections uint64
	Reconnections  uint64
	Messages       uint64
	Errors         uint64

	Latencies         []time.Duration // most recent samples, oldest first
	ConnectedDuration time.Duration   // includes the current session
	StartedAt         time.Time
	LastMessageAt     time.Time
}

// HealthReport is the derived view handed to callers and logs.
type HealthReport struct {
	Status         HealthStatus
	Metrics        HealthMetrics
	UptimeRatio    float64
	ErrorRate      float64
	AverageLatency time.Duration
	Summary        string
}

// HealthMonitor only counts. It never drives reconnects.
type HealthMonitor struct {
	clock      Clock
	maxSamples int

	mu             sync.Mutex
	m              HealthMetrics
	connected      bool
	connectedSince time.Time
}

func NewHealthMonitor(clock Clock, maxSamples int) *HealthMonitor {
	if clock == nil {
		clock = RealClock()
	}
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &HealthMonitor{
		clock:      clock,
		maxSamples: maxSamples,
		m:          HealthMetrics{StartedAt: clock.Now()},
	}
}

func (h *HealthMonitor) RecordConnection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m.Connections++
	if !h.connected {
		h.connected = true
		h.connectedSince = h.clock.Now()
	}
}

func (h *HealthMonitor) RecordDisconnection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m.Disconnections++
	if h.connected {
		h.m.ConnectedDuration += h.clock.Now().Sub(h.connectedSince)
		h.connected = false
	}
}

func (h *HealthMonitor) RecordReconnection() {
	h.mu.Lock()
	h.m.Reconnections++
	h.mu.Unlock()
}

func (h *HealthMonitor) RecordMessage() {
	h.mu.Lock()
	h.m.Messages++
	h.m.LastMessageAt = h.clock.Now()
	h.mu.Unlock()
}

func (h *HealthMonitor) RecordError() {
	h.mu.Lock()
	h.m.Errors++
	h.mu.Unlock()
}

// RecordLatency keeps the last maxSamples values.
func (h *HealthMonitor) RecordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.m.Latencies) >= h.maxSamples {
		copy(h.m.Latencies, h.m.Latencies[1:])
		h.m.Latencies[len(h.m.Latencies)-1] = d
		return
	}
	h.m.Latencies = append(h.m.Latencies, d)
}

// Metrics returns a copy safe to keep.
func (h *HealthMonitor) Metrics() HealthMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(h.clock.Now())
}

func (h *HealthMonitor) snapshotLocked(now time.Time) HealthMetrics {
	out := h.m
	out.Latencies = append([]time.Duration(nil), h.m.Latencies...)
	if h.connected {
		out.ConnectedDuration += now.Sub(h.connectedSince)
	}
	return out
}

// UptimeRatio is connected time over time since the monitor started.
func (h *HealthMonitor) UptimeRatio() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.clock.Now()
	return uptimeRatio(h.snapshotLocked(now), now)
}

// ErrorRate is errors over messages: 0 with no traffic, 1 when there are
// errors but no messages.
func (h *HealthMonitor) ErrorRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errorRate(h.m)
}

func (h *HealthMonitor) Status() HealthStatus {
	return h.Report().Status
}

func (h *HealthMonitor) Report() HealthReport {
	h.mu.Lock()
	now := h.clock.Now()
	m := h.snapshotLocked(now)
	h.mu.Unlock()

	up := uptimeRatio(m, now)
	er := errorRate(m)
	avg := averageLatency(m.Latencies)
	status := classify(up, er)

	return HealthReport{
		Status:         status,
		Metrics:        m,
		UptimeRatio:    up,
		ErrorRate:      er,
		AverageLatency: avg,
		Summary: fmt.Sprintf("%s uptime=%.1f%% errors=%.2f%% msgs=%d conns=%d reconns=%d avg_latency=%s",
			status, up*100, er*100, m.Messages, m.Connections, m.Reconnections, avg),
	}
}

func classify(uptime, errRate float64) HealthStatus {
	switch {
	case uptime >= 0.9 && errRate <= 0.01:
		return HealthHealthy
	case uptime >= 0.7 || errRate <= 0.05:
		return HealthWarning
	}
	return HealthCritical
}

func uptimeRatio(m HealthMetrics, now time.Time) float64 {
	elapsed := now.Sub(m.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	r := float64(m.ConnectedDuration) / float64(elapsed)
	if r > 1 {
		return 1
	}
	return r
}

func errorRate(m HealthMetrics) float64 {
	if m.Messages == 0 {
		if m.Errors == 0 {
			return 0
		}
		return 1
	}
	return float64(m.Errors) / float64(m.Messages)
}

func averageLatency(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}
