package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"graphrag/internal/config"
)

// MetricsStore is the append-only fact table Stage 8's metrics are flushed
// to at commit time, keyed by build_version so historical runs stay queryable
// after a later build supersedes them in the live graph.
type MetricsStore struct {
	conn clickhouse.Conn
}

// NewMetricsStore opens a ClickHouse connection from cfg's DSN.
func NewMetricsStore(ctx context.Context, cfg config.ClickHouseConfig) (*MetricsStore, error) {
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &MetricsStore{conn: conn}, nil
}

// EnsureSchema creates the metrics fact table. Safe to call on every startup.
func (m *MetricsStore) EnsureSchema(ctx context.Context) error {
	return m.conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS build_metrics (
	build_version            String,
	recorded_at              DateTime,
	entity_link_accuracy     Float64,
	predicate_other_share    Float64,
	provenance_completeness  Float64,
	claim_relation_precision Float64
) ENGINE = MergeTree()
ORDER BY (build_version, recorded_at)
`)
}

// Append records one Metrics snapshot for a build_version.
func (m *MetricsStore) Append(ctx context.Context, metrics Metrics, recordedAt time.Time) error {
	return m.conn.Exec(ctx, `
INSERT INTO build_metrics
	(build_version, recorded_at, entity_link_accuracy, predicate_other_share, provenance_completeness, claim_relation_precision)
VALUES (?, ?, ?, ?, ?, ?)
`,
		metrics.BuildVersion, recordedAt,
		metrics.EntityLinkAccuracy, metrics.PredicateOtherShare,
		metrics.ProvenanceCompleteness, metrics.ClaimRelationPrecision,
	)
}

// History returns every recorded Metrics snapshot for buildVersion, oldest
// first, so Stage 8 callers can chart drift across re-runs of the same job.
func (m *MetricsStore) History(ctx context.Context, buildVersion string) ([]Metrics, error) {
	rows, err := m.conn.Query(ctx, `
SELECT build_version, entity_link_accuracy, predicate_other_share, provenance_completeness, claim_relation_precision
FROM build_metrics WHERE build_version = ? ORDER BY recorded_at ASC
`, buildVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Metrics
	for rows.Next() {
		var m Metrics
		if err := rows.Scan(&m.BuildVersion, &m.EntityLinkAccuracy, &m.PredicateOtherShare, &m.ProvenanceCompleteness, &m.ClaimRelationPrecision); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close releases the underlying ClickHouse connection.
func (m *MetricsStore) Close() error {
	return m.conn.Close()
}
