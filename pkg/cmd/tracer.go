package cmd

import (
	"context"

	"github.com/dukex/drafts/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP/HTTP when enabled. The exporter is configured through
// the standard OTEL_EXPORTER_OTLP_* environment variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NewNoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
