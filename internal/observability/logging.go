// Package observability carries the ambient logging, HTTP instrumentation
// and payload-redaction plumbing shared by both CLI entrypoints and every
// pipeline stage.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide zerolog logger. When logPath is
// non-empty, output goes to that file (append mode) instead of stdout; a
// file that can't be opened falls back to stdout with a note on stderr.
// With exportOTelLogs set, every record is additionally mirrored to the
// global OTLP log provider installed by internal/telemetry.
func InitLogger(logPath, level string, exportOTelLogs bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	if exportOTelLogs {
		w = zerolog.MultiLevelWriter(w, NewOTelWriter("graphrag"))
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(parseLevel(level))

	// Route standard-library log output (provider SDK internals, mostly)
	// through zerolog so nothing bypasses the structured stream.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
