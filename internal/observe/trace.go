package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nanobot-edge/nanobot"

// Span attribute keys of a conversation turn.
const (
	AttrTurnID     = attribute.Key("nanobot.turn.id")
	AttrAgent      = attribute.Key("nanobot.agent")
	AttrWakePhrase = attribute.Key("nanobot.wake_phrase")
)

// StartSpan starts a span on the global tracer provider. The caller must
// end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartTurn starts the span covering one wake-initiated conversation. Stage
// spans started from the returned context become its children.
func StartTurn(ctx context.Context, id, agent, phrase string) (context.Context, trace.Span) {
	return StartSpan(ctx, "conversation.turn", trace.WithAttributes(
		AttrTurnID.String(id),
		AttrAgent.String(agent),
		AttrWakePhrase.String(phrase),
	))
}

// TraceID returns the hex trace ID of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with trace_id and span_id of the span in
// ctx attached, so turn logs can be matched to their traces.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
