package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gossip-lsp/gutter/jsonrpc"
)

// Metrics holds request counts and duration statistics per method.
type Metrics struct {
	mu      sync.RWMutex
	methods map[string]*MethodMetrics
}

// MethodMetrics holds metrics for a single method.
type MethodMetrics struct {
	Count    atomic.Int64
	Errors   atomic.Int64
	NotFound atomic.Int64
	TotalNs  atomic.Int64
	MaxNs    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{methods: make(map[string]*MethodMetrics)}
}

func (m *Metrics) getOrCreate(method string) *MethodMetrics {
	m.mu.RLock()
	mm, ok := m.methods[method]
	m.mu.RUnlock()
	if ok {
		return mm
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mm, ok := m.methods[method]; ok {
		return mm
	}
	mm = &MethodMetrics{}
	m.methods[method] = mm
	return mm
}

// Snapshot returns a point-in-time copy of all method metrics.
func (m *Metrics) Snapshot() map[string]MethodSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := make(map[string]MethodSnapshot, len(m.methods))
	for name, mm := range m.methods {
		snap[name] = MethodSnapshot{
			Count:     mm.Count.Load(),
			Errors:    mm.Errors.Load(),
			NotFound:  mm.NotFound.Load(),
			TotalTime: time.Duration(mm.TotalNs.Load()),
			MaxTime:   time.Duration(mm.MaxNs.Load()),
		}
	}
	return snap
}

// MethodSnapshot is a point-in-time copy of metrics for one method.
// NotFound counts baseline misses, which are not included in Errors.
type MethodSnapshot struct {
	Count     int64
	Errors    int64
	NotFound  int64
	TotalTime time.Duration
	MaxTime   time.Duration
}

// Mean returns the average request duration.
func (s MethodSnapshot) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Count)
}

// Telemetry returns middleware that collects request count and latency metrics.
func Telemetry(metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
			mm := metrics.getOrCreate(method)
			start := time.Now()
			result, err := next(ctx, method, params)
			elapsed := int64(time.Since(start))

			mm.Count.Add(1)
			mm.TotalNs.Add(elapsed)
			for {
				cur := mm.MaxNs.Load()
				if elapsed <= cur || mm.MaxNs.CompareAndSwap(cur, elapsed) {
					break
				}
			}
			switch {
			case err == nil:
			case jsonrpc.ErrorCode(err) == jsonrpc.CodeBaselineNotFound:
				mm.NotFound.Add(1)
			default:
				mm.Errors.Add(1)
			}

			return result, err
		}
	}
}
