package core

import (
	"context"
	"time"

	"dentalcore/pkg/domain"
)

// AuditStatus labels the outcome recorded for one service operation.
type AuditStatus string

// Audit outcome labels.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	Operation string             `json:"operation"`
	Status    AuditStatus        `json:"status"`
	Entity    domain.EntityType  `json:"entity,omitempty"`
	EntityID  string             `json:"entity_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	Warnings  []domain.Violation `json:"warnings,omitempty"`
	Occurred  time.Time          `json:"occurred"`
}

// AuditRecorder receives audit entries emitted by the service facade.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latencies.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// Logger is the minimal logging surface the service writes to. Deployments
// adapt their own logger; the default discards everything.
type Logger interface {
	Printf(format string, args ...any)
}

// Notifier observes successful case status changes so external surfaces can
// refresh. The post-transition state is committed before the notifier runs.
type Notifier interface {
	CaseStatusChanged(ctx context.Context, before, after domain.Case)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// ServiceOption customises service construction.
type ServiceOption func(*Service)

// WithAuditRecorder attaches an audit recorder to the service.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = recorder }
}

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = recorder }
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithLogger attaches a logger to the service.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier attaches a status-change notifier to the service.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithPreferenceStore overrides the snapshot-backed preference bucket with an
// external key-value store.
func WithPreferenceStore(prefs domain.PreferenceStore) ServiceOption {
	return func(s *Service) { s.prefs = prefs }
}

// WithClock overrides the service clock, used by tests for deterministic
// transition timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// instrument wraps one service operation with tracing, metrics, audit, and
// warning logging.
func (s *Service) instrument(ctx context.Context, op string, entity domain.EntityType, entityID string, fn func(context.Context) (domain.Result, error)) (domain.Result, error) {
	started := s.nowFn()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	res, err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	duration := s.nowFn().Sub(started)
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, duration)
	}
	for _, warning := range res.Warnings() {
		s.logger.Printf("warn: %s: %s", warning.Rule, warning.Message)
	}
	if s.audit != nil {
		entry := AuditEntry{
			Operation: op,
			Status:    AuditStatusSuccess,
			Entity:    entity,
			EntityID:  entityID,
			Warnings:  res.Warnings(),
			Occurred:  started,
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}
	return res, err
}
