package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace enriches base (or the global logger, if base is nil) with
// trace_id/span_id/trace_sampled fields pulled from ctx's active span, if
// any, so per-stage log lines correlate with the ingestion trace.
func LoggerWithTrace(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := log.Logger
	if base != nil {
		l = *base
	}
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		builder := l.With().Str("trace_id", sc.TraceID().String())
		if sc.HasSpanID() {
			builder = builder.Str("span_id", sc.SpanID().String())
		}
		if sc.IsSampled() {
			builder = builder.Bool("trace_sampled", true)
		}
		l = builder.Logger()
	}
	return &l
}
