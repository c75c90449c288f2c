package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationMetrics aggregates the outcomes of one workflow operation
// (create_case, assign_laboratory, transit_transition, ...).
type OperationMetrics struct {
	Success int64   `json:"success"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// ExpvarMetricsSnapshot is the read-only view exported via expvar: one stats
// row per workflow operation plus a grand call total.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationMetrics `json:"operations"`
	TotalCalls int64                       `json:"total_calls"`
	RecordedAt time.Time                   `json:"recorded_at"`
}

// ExpvarMetricsRecorder keeps per-operation success/error counts and latency
// aggregates and publishes them via expvar, for deployments that want
// process-local visibility without scrape infrastructure. Use the Prometheus
// recorder when an external collector is available.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*OperationMetrics
}

// NewExpvarMetricsRecorder constructs a recorder and publishes it under the
// supplied expvar name. When name is empty a unique one is generated, since
// expvar panics on duplicate registration.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("dentalcore_workflow_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]*OperationMetrics),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Observe records one operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.ops[operation]
	if !ok {
		stats = &OperationMetrics{}
		r.ops[operation] = stats
	}
	if success {
		stats.Success++
	} else {
		stats.Errors++
	}
	stats.TotalMS += ms
	if ms > stats.MaxMS {
		stats.MaxMS = ms
	}
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := ExpvarMetricsSnapshot{
		Operations: make(map[string]OperationMetrics, len(r.ops)),
		RecordedAt: time.Now().UTC(),
	}
	for op, stats := range r.ops {
		snapshot.Operations[op] = *stats
		snapshot.TotalCalls += stats.Success + stats.Errors
	}
	return snapshot
}

// TraceEvent is one completed workflow operation span. Seq orders events
// globally within the process so interleaved case timelines can be
// reconstructed from the log alone.
type TraceEvent struct {
	Seq        uint64    `json:"seq"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTraceTracer emits one JSON line per completed operation and retains
// the events for inspection via Events(). A nil writer keeps events
// in memory only.
type JSONTraceTracer struct {
	seq    uint64
	mu     sync.Mutex
	events []TraceEvent
	enc    *json.Encoder
}

// NewJSONTracer constructs a tracer writing JSON lines to w.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Events returns a copy of all recorded events in emission order.
func (t *JSONTraceTracer) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		started:   time.Now().UTC(),
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	event := TraceEvent{
		Operation:  s.operation,
		Outcome:    "success",
		StartedAt:  s.started,
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		event.Outcome = "error"
		event.Error = err.Error()
	}

	s.tracer.mu.Lock()
	s.tracer.seq++
	event.Seq = s.tracer.seq
	s.tracer.events = append(s.tracer.events, event)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(event)
	}
	s.tracer.mu.Unlock()
}
