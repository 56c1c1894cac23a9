package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the global provider. Without an
// SDK installed the provider is a no-op, so instrumented paths cost
// nothing in tests and development.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
