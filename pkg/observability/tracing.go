package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for preparation runs.
	TracerName = "groupprep"
)

// Span attribute keys
const (
	AttrRunID      = "run_id"
	AttrInput      = "input"
	AttrStage      = "stage"
	AttrRows       = "rows"
	AttrColumns    = "columns"
	AttrMissing    = "missing"
	AttrErrorCode  = "error_code"
	AttrIdentities = "identities"
)

// Span names
const (
	SpanRun    = "groupprep.run"
	SpanExport = "groupprep.export"
)

// Tracer provides tracing for preparation runs. It uses the global tracer
// provider, which is a no-op unless the embedding program installs one.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new run tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartRunSpan starts the root span for one run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID, input string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRun,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrInput, input),
		),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "groupprep.stage."+stage,
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
		),
	)
}

// StartExportSpan starts a span for writing features to a sink.
func (t *Tracer) StartExportSpan(ctx context.Context, sink string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanExport,
		trace.WithAttributes(attribute.String("sink", sink)),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetShape records the table shape after a stage.
func (h *SpanHelper) SetShape(rows, columns int) {
	h.span.SetAttributes(
		attribute.Int(AttrRows, rows),
		attribute.Int(AttrColumns, columns),
	)
}

// SetMissing records how many derived cells a stage left missing.
func (h *SpanHelper) SetMissing(n int) {
	h.span.SetAttributes(attribute.Int(AttrMissing, n))
}

// SetIdentities records the identity map size.
func (h *SpanHelper) SetIdentities(n int) {
	h.span.SetAttributes(attribute.Int(AttrIdentities, n))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(attribute.String(AttrErrorCode, code))
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
