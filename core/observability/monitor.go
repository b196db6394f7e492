package observability

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMonitor aggregates per-status request metrics with atomic
// counters and optionally mirrors them into OpenTelemetry instruments.
type PerformanceMonitor struct {
	enabled  atomic.Bool
	handlers sync.Map // status code -> *StatusMetrics
	metrics  *Metrics
	global   struct {
		totalRequests atomic.Uint64
		totalDuration atomic.Uint64
		totalBytes    atomic.Uint64
	}
}

// StatusMetrics stores metrics for one response status
type StatusMetrics struct {
	Status         int
	Count          atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	BytesSent      atomic.Uint64
	latencyBuckets [len(LatencyBounds) + 1]atomic.Uint64
}

// Bottleneck represents a performance issue
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewPerformanceMonitor creates a monitor. metrics may be nil.
func NewPerformanceMonitor(metrics *Metrics) *PerformanceMonitor {
	pm := &PerformanceMonitor{metrics: metrics}
	pm.enabled.Store(true)
	return pm
}

// RecordRequest records one fully sent response
func (pm *PerformanceMonitor) RecordRequest(status int, duration time.Duration, sent int64) {
	if !pm.enabled.Load() {
		return
	}

	val, ok := pm.handlers.Load(status)
	if !ok {
		val, _ = pm.handlers.LoadOrStore(status, &StatusMetrics{Status: status})
	}
	m := val.(*StatusMetrics)

	durationNs := uint64(duration.Nanoseconds())
	m.Count.Add(1)
	m.TotalDuration.Add(durationNs)
	m.BytesSent.Add(uint64(sent))
	pm.updateMinMax(m, durationNs)
	pm.updateLatencyBucket(m, durationNs)

	pm.global.totalRequests.Add(1)
	pm.global.totalDuration.Add(durationNs)
	pm.global.totalBytes.Add(uint64(sent))

	if pm.metrics != nil {
		pm.metrics.RecordRequest(context.Background(), status, duration, sent)
	}
}

func (pm *PerformanceMonitor) updateMinMax(m *StatusMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

// LatencyBounds are the exclusive upper bounds of the latency buckets. The
// last bucket has no bound.
var LatencyBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

func (pm *PerformanceMonitor) updateLatencyBucket(m *StatusMetrics, durationNs uint64) {
	d := time.Duration(durationNs)
	idx := len(LatencyBounds)
	for i, bound := range LatencyBounds {
		if d < bound {
			idx = i
			break
		}
	}
	m.latencyBuckets[idx].Add(1)
}

// DetectBottlenecks flags slow or failing status classes
func (pm *PerformanceMonitor) DetectBottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)
	total := pm.global.totalRequests.Load()

	pm.handlers.Range(func(key, value interface{}) bool {
		m := value.(*StatusMetrics)
		count := m.Count.Load()
		if count == 0 {
			return true
		}

		avgDuration := time.Duration(m.TotalDuration.Load() / count)
		location := "status " + strconv.Itoa(m.Status)

		// High latency
		if avgDuration > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "latency",
				Location:   location,
				Severity:   8,
				Impact:     100.0,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("High latency (%v avg)", avgDuration),
			})
		}

		// server-side failures
		if m.Status >= 500 && total > 0 && float64(count)/float64(total) > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "errors",
				Location:   location,
				Severity:   10,
				Impact:     float64(count) / float64(total) * 100,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%.1f%% of responses", float64(count)/float64(total)*100),
			})
		}

		return true
	})

	return bottlenecks
}

// StatusSnapshot is a point-in-time copy of StatusMetrics
type StatusSnapshot struct {
	Status      int           `json:"status"`
	Count       uint64        `json:"count"`
	BytesSent   uint64        `json:"bytes_sent"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`

	// Latency[i] counts responses below LatencyBounds[i]; the last entry
	// counts the rest.
	Latency [len(LatencyBounds) + 1]uint64 `json:"latency"`
}

// Snapshot returns per-status metrics ordered by status code
func (pm *PerformanceMonitor) Snapshot() []StatusSnapshot {
	var out []StatusSnapshot
	pm.handlers.Range(func(_, value interface{}) bool {
		m := value.(*StatusMetrics)
		s := StatusSnapshot{
			Status:      m.Status,
			Count:       m.Count.Load(),
			BytesSent:   m.BytesSent.Load(),
			MinDuration: time.Duration(m.MinDuration.Load()),
			MaxDuration: time.Duration(m.MaxDuration.Load()),
		}
		for i := range m.latencyBuckets {
			s.Latency[i] = m.latencyBuckets[i].Load()
		}
		if s.Count > 0 {
			s.AvgDuration = time.Duration(m.TotalDuration.Load() / s.Count)
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// TotalRequests returns the number of responses recorded
func (pm *PerformanceMonitor) TotalRequests() uint64 {
	return pm.global.totalRequests.Load()
}

// TotalBytes returns the number of response bytes recorded
func (pm *PerformanceMonitor) TotalBytes() uint64 {
	return pm.global.totalBytes.Load()
}

func (pm *PerformanceMonitor) Enable()  { pm.enabled.Store(true) }
func (pm *PerformanceMonitor) Disable() { pm.enabled.Store(false) }
