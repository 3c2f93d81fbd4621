// Package coretrace resolves an OpenTelemetry tracer for acpcore
// components, falling back to the no-op tracer provider when no
// exporter has been configured by the embedding application.
package coretrace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/brindlewood/acpcore"

var (
	once   sync.Once
	tracer trace.Tracer
)

// Tracer returns the package-wide tracer. It reads from the global
// TracerProvider (otel.GetTracerProvider), which is a no-op until the
// embedding application installs a real one via go.opentelemetry.io/otel/sdk.
func Tracer() trace.Tracer {
	once.Do(func() {
		provider := otel.GetTracerProvider()
		if provider == nil {
			provider = noop.NewTracerProvider()
		}
		tracer = provider.Tracer(instrumentationName)
	})
	return tracer
}

// StartRPC starts a span for an outbound JSON-RPC call.
func StartRPC(ctx context.Context, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "acp.rpc."+method, trace.WithSpanKind(trace.SpanKindClient))
}

// StartToolCall starts a span for a tool-call lifecycle transition.
func StartToolCall(ctx context.Context, toolCallID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "acp.toolcall", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes())
}

// EndWithError records err on span (if non-nil) and sets the span status
// accordingly before the caller's deferred span.End().
func EndWithError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
