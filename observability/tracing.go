package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/chatrelay"

// Tracer provides OpenTelemetry tracing for the relay. A nil *Tracer starts
// no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSubmissionSpan starts a span for one outbound delivery call.
func (t *Tracer) StartSubmissionSpan(ctx context.Context, submissionID, uid, userName string) (context.Context, trace.Span) {
	return t.start(ctx, "chatrelay.submission",
		attribute.String("chatrelay.submission_id", submissionID),
		attribute.String("chatrelay.uid", uid),
		attribute.String("chatrelay.user", userName),
	)
}

// EndSubmissionSpan ends a submission span with result attributes.
func (t *Tracer) EndSubmissionSpan(span trace.Span, statusCode, latencyMs int, err error) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("chatrelay.latency_ms", latencyMs),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartConfirmationSpan starts a span for one inbound confirmation.
func (t *Tracer) StartConfirmationSpan(ctx context.Context, uid, userName, code string) (context.Context, trace.Span) {
	return t.start(ctx, "chatrelay.confirmation",
		attribute.String("chatrelay.uid", uid),
		attribute.String("chatrelay.user", userName),
		attribute.String("chatrelay.error_code", code),
	)
}

// EndConfirmationSpan ends a confirmation span, recording the resulting
// state or the rejection error.
func (t *Tracer) EndConfirmationSpan(span trace.Span, state string, err error) {
	if state != "" {
		span.SetAttributes(attribute.String("chatrelay.state", state))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
