// Package telemetry wires OpenTelemetry tracing for the scan driver and
// the live streamer. With no SDK installed the global provider is a noop,
// so instrumentation is free by default.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lanegrid/agtrace"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartScan opens a span covering one scan-driver run.
func StartScan(ctx context.Context, projectHash string, force bool) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("project_hash", projectHash),
		attribute.Bool("force", force),
	))
}

// StartProvider opens a span covering one provider's discovery pass.
func StartProvider(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "scan.provider", trace.WithAttributes(
		attribute.String("provider", name),
	))
}

// StartAttach opens a span covering a streamer attach.
func StartAttach(ctx context.Context, path string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "watch.attach", trace.WithAttributes(
		attribute.String("path", path),
	))
}
