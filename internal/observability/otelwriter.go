package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// OTelWriter bridges zerolog output into OpenTelemetry log records so
// pipeline logs land in the same backend as traces and metrics, with
// build_version/doc_id/stage fields preserved as record attributes.
type OTelWriter struct {
	logger log.Logger
}

// NewOTelWriter emits records through the global OTLP log provider
// installed by internal/telemetry.
func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{logger: global.GetLoggerProvider().Logger(name)}
}

// Write implements io.Writer over one zerolog JSON line. Lines that aren't
// valid JSON are forwarded as a plain info-severity record rather than lost.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		var rec log.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(log.SeverityInfo)
		rec.SetBody(log.StringValue(string(p)))
		w.logger.Emit(context.Background(), rec)
		return len(p), nil
	}
	w.logger.Emit(context.Background(), w.toRecord(fields))
	return len(p), nil
}

// toRecord lifts zerolog's well-known fields (time, level, message) into
// the record envelope and carries everything else as attributes.
func (w *OTelWriter) toRecord(fields map[string]any) log.Record {
	var rec log.Record

	rec.SetTimestamp(time.Now())
	if ts, ok := fields["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(t)
		}
		delete(fields, "time")
	}

	rec.SetSeverity(log.SeverityInfo)
	rec.SetSeverityText("info")
	if lvl, ok := fields["level"].(string); ok {
		rec.SetSeverity(severityFor(lvl))
		rec.SetSeverityText(lvl)
		delete(fields, "level")
	}

	for _, key := range []string{"message", "msg"} {
		if msg, ok := fields[key].(string); ok {
			rec.SetBody(log.StringValue(msg))
			delete(fields, key)
			break
		}
	}

	attrs := make([]log.KeyValue, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, log.KeyValue{Key: k, Value: attrValue(v)})
	}
	rec.AddAttributes(attrs...)
	return rec
}

func severityFor(level string) log.Severity {
	switch level {
	case "trace":
		return log.SeverityTrace
	case "debug":
		return log.SeverityDebug
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	case "fatal", "panic":
		return log.SeverityFatal
	default:
		return log.SeverityInfo
	}
}

func attrValue(v any) log.Value {
	switch val := v.(type) {
	case string:
		return log.StringValue(val)
	case float64:
		return log.Float64Value(val)
	case bool:
		return log.BoolValue(val)
	case nil:
		return log.StringValue("")
	default:
		if b, err := json.Marshal(val); err == nil {
			return log.StringValue(string(b))
		}
		return log.StringValue("")
	}
}
