package core

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/edge-httpd/core/observability"
	"github.com/searchktools/edge-httpd/core/pools"
)

// Stats is a point-in-time view of the engine
type Stats struct {
	Uptime      time.Duration
	LiveConns   int64
	Accepted    uint64
	Refused     uint64
	Pool        pools.WorkerPoolStats
	Requests    uint64
	BytesSent   uint64
	Statuses    []observability.StatusSnapshot
	Bottlenecks []observability.Bottleneck
	GC          pools.GCStats
}

// Stats returns current engine statistics. It may be called from any
// goroutine.
func (e *Engine) Stats() Stats {
	s := Stats{
		LiveConns:   e.users.Load(),
		Accepted:    e.accepted.Load(),
		Refused:     e.refused.Load(),
		Pool:        e.pool.Stats(),
		Requests:    e.monitor.TotalRequests(),
		BytesSent:   e.monitor.TotalBytes(),
		Statuses:    e.monitor.Snapshot(),
		Bottlenecks: e.monitor.DetectBottlenecks(),
		GC:          pools.GetGCStats(),
	}
	if started := e.started.Load(); started != 0 {
		s.Uptime = time.Since(time.Unix(0, started))
	}
	return s
}

// Struct encodes the stats as a protobuf Struct.
func (s Stats) Struct() (*structpb.Struct, error) {
	statuses := make([]any, 0, len(s.Statuses))
	for _, st := range s.Statuses {
		statuses = append(statuses, map[string]any{
			"status":     st.Status,
			"count":      st.Count,
			"bytes_sent": st.BytesSent,
			"avg":        st.AvgDuration.String(),
			"min":        st.MinDuration.String(),
			"max":        st.MaxDuration.String(),
			"latency":    latencyBuckets(st.Latency),
		})
	}

	bottlenecks := make([]any, 0, len(s.Bottlenecks))
	for _, b := range s.Bottlenecks {
		bottlenecks = append(bottlenecks, map[string]any{
			"type":     b.Type,
			"location": b.Location,
			"severity": b.Severity,
			"details":  b.Details,
		})
	}

	st, err := structpb.NewStruct(map[string]any{
		"uptime":     s.Uptime.String(),
		"live_conns": s.LiveConns,
		"accepted":   s.Accepted,
		"refused":    s.Refused,
		"pool": map[string]any{
			"workers":   s.Pool.NumWorkers,
			"capacity":  s.Pool.QueueCapacity,
			"submitted": s.Pool.TasksSubmitted,
			"completed": s.Pool.TasksCompleted,
			"rejected":  s.Pool.TasksRejected,
			"pending":   s.Pool.TasksPending,
		},
		"requests":    s.Requests,
		"bytes_sent":  s.BytesSent,
		"statuses":    statuses,
		"bottlenecks": bottlenecks,
		"gc": map[string]any{
			"num_gc":      s.GC.NumGC,
			"pause_total": s.GC.PauseTotal.String(),
			"last_pause":  s.GC.LastPause.String(),
			"alloc_bytes": s.GC.AllocBytes,
			"sys_bytes":   s.GC.Sys,
			"goroutines":  s.GC.NumGoroutine,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return st, nil
}

// latencyBuckets keys each non-empty bucket by its upper bound, "+Inf"
// for the last one.
func latencyBuckets(counts [len(observability.LatencyBounds) + 1]uint64) map[string]any {
	out := make(map[string]any)
	for i, n := range counts {
		if n == 0 {
			continue
		}
		key := "+Inf"
		if i < len(observability.LatencyBounds) {
			key = "<" + observability.LatencyBounds[i].String()
		}
		out[key] = n
	}
	return out
}

// MarshalJSON renders the stats through protojson.
func (s Stats) MarshalJSON() ([]byte, error) {
	st, err := s.Struct()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}

// Format renders indented JSON for logs and signal dumps.
func (s Stats) Format() (string, error) {
	st, err := s.Struct()
	if err != nil {
		return "", err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("render stats: %w", err)
	}
	return string(b), nil
}
