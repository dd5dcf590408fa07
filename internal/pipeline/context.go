// Package pipeline defines the cross-stage plumbing shared by every stage of
// the ingestion pipeline: the explicit PipelineContext carried through every
// stage call instead of global singletons, the typed error taxonomy stages
// report through, and per-job diagnostics aggregation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"graphrag/internal/config"
	"graphrag/internal/observability"
)

// Clock abstracts time so stages are deterministically testable.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Metrics is the counter/histogram surface every stage reports through.
// Concrete implementations adapt OtelMetrics; tests use an in-memory double.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// NoopMetrics discards everything; used where no metrics backend is wired.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)                {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// PipelineContext is passed by value into every stage function. Nothing in
// the stage packages reads a package-level logger, config, or client;
// whatever a stage needs rides in here.
type PipelineContext struct {
	Context      context.Context
	Config       *config.Config
	Logger       zerolog.Logger
	Metrics      Metrics
	Clock        Clock
	BuildVersion string
}

// WithStage returns a copy of pc whose Logger carries a "stage" field and,
// when pc.Context holds an active span, trace_id/span_id correlation, for
// stages to derive their own scoped logger without mutating the caller's.
func (pc PipelineContext) WithStage(stage string) PipelineContext {
	logger := *observability.LoggerWithTrace(pc.Context, &pc.Logger)
	pc.Logger = logger.With().Str("stage", stage).Logger()
	return pc
}

// NewBuildVersion mints a new build_version identifier: "{prefix}-{uuid}".
// Every ingestion run gets exactly one, stamped onto every Chunk, Claim and
// graph write the run produces, so Stage 8 feedback can target a single run
// without touching prior ones.
func NewBuildVersion(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Kind is the closed taxonomy of pipeline error categories. Each maps to a
// distinct operational response: retry, surface to a human, or reject input.
type Kind string

const (
	// KindInput marks malformed or unsupported caller input (e.g. an empty
	// document, an unsupported DocumentKind). Not retryable; reject early.
	KindInput Kind = "input"
	// KindParsing marks failures turning raw bytes into {text, headings,
	// page_map} for a supported DocumentKind. Not retryable without a fix
	// upstream (corrupt PDF, malformed HTML).
	KindParsing Kind = "parsing"
	// KindLinkingAmbiguity marks a Stage 2 candidate score within
	// [low_threshold, high_threshold): routed to the review queue, not an
	// operational failure.
	KindLinkingAmbiguity Kind = "linking_ambiguity"
	// KindOntologyViolation marks a Stage 5 predicate or Stage 2 node-type
	// pair rejected by the configured ontology. Not retryable until the
	// ontology or the extraction is corrected.
	KindOntologyViolation Kind = "ontology_violation"
	// KindStoreTransient marks a retryable failure talking to Postgres,
	// Qdrant, Redis, Kafka or ClickHouse.
	KindStoreTransient Kind = "store_transient"
	// KindConfig marks an invalid or missing configuration value discovered
	// at startup or first use.
	KindConfig Kind = "config"
)

// PipelineError is the typed error every stage returns instead of a bare
// error, so a job's diagnostics can group failures by Kind and Stage.
type PipelineError struct {
	Kind    Kind
	Stage   string
	DocID   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s/%s): %v", e.Kind, e.Message, e.Stage, e.DocID, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s/%s)", e.Kind, e.Message, e.Stage, e.DocID)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError constructs a PipelineError, wrapping cause if non-nil.
func NewError(kind Kind, stage, docID, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, DocID: docID, Message: message, Err: cause}
}

// IsRetryable reports whether a pipeline error's Kind warrants an automatic
// retry by the caller (only transient store failures are).
func IsRetryable(err error) bool {
	var pe *PipelineError
	if e, ok := err.(*PipelineError); ok {
		pe = e
	} else {
		return false
	}
	return pe.Kind == KindStoreTransient
}

// JobDiagnostics accumulates per-document outcomes for one ingestion job
// (one call to run the pipeline over a batch of documents), surfaced to
// callers and to Stage 8's metrics feed.
type JobDiagnostics struct {
	BuildVersion    string
	Counts          map[string]int // e.g. "documents", "chunks", "claims", "review_queued"
	Errors          []*PipelineError
	ReviewQueueSize int
	StartedAt       time.Time
	FinishedAt      time.Time
}

// NewJobDiagnostics initializes an empty diagnostics record for buildVersion.
func NewJobDiagnostics(buildVersion string, now time.Time) *JobDiagnostics {
	return &JobDiagnostics{
		BuildVersion: buildVersion,
		Counts:       make(map[string]int),
		StartedAt:    now,
	}
}

// Count increments a named counter.
func (d *JobDiagnostics) Count(name string, delta int) {
	d.Counts[name] += delta
}

// Record appends a stage error to the diagnostics without aborting the job;
// callers decide per-Kind whether to continue processing the remaining
// documents in the batch.
func (d *JobDiagnostics) Record(err *PipelineError) {
	d.Errors = append(d.Errors, err)
}

// Finish stamps FinishedAt; call once the job's documents are all processed.
func (d *JobDiagnostics) Finish(now time.Time) {
	d.FinishedAt = now
}
