package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
	"github.com/brojonat/suilyzer/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the journal table. EnsureSchema applies it idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
    digest          TEXT PRIMARY KEY,
    sender          TEXT NOT NULL,
    status          TEXT NOT NULL,
    gas_used        TEXT NOT NULL,
    summary         TEXT NOT NULL,
    summary_source  TEXT NOT NULL,
    node_count      INTEGER NOT NULL,
    edge_count      INTEGER NOT NULL,
    checkpoint      BIGINT,
    result          JSONB NOT NULL,
    analyzed_at     TIMESTAMPTZ NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analyses_sender_analyzed_at_idx ON analyses (sender, analyzed_at DESC);
CREATE INDEX IF NOT EXISTS analyses_analyzed_at_idx ON analyses (analyzed_at DESC);
`

// Store is the analysis journal. It records every computed analysis so that
// operators can audit what was served; it is never read on the request path.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Analysis is one journaled analysis.
type Analysis struct {
	Digest        string          `json:"digest"`
	Sender        string          `json:"sender"`
	Status        string          `json:"status"`
	GasUsed       string          `json:"gas_used"`
	Summary       string          `json:"summary"`
	SummarySource string          `json:"summary_source"`
	NodeCount     int32           `json:"node_count"`
	EdgeCount     int32           `json:"edge_count"`
	Checkpoint    *int64          `json:"checkpoint,omitempty"`
	Result        json.RawMessage `json:"result"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListAnalysesParams filters ListRecentAnalyses.
type ListAnalysesParams struct {
	Sender *string // nil lists every sender
	Limit  int32
	Offset int32
}

// EnsureSchema creates the journal table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordAnalysis upserts a result. Re-analysis of a digest after cache
// invalidation replaces the previous row.
func (s *Store) RecordAnalysis(ctx context.Context, r *analyzer.Result) (err error) {
	start := time.Now()
	defer func() { s.observe("upsert", start, err) }()

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var nodes, edges int
	if r.Diagram != nil {
		nodes, edges = len(r.Diagram.Nodes), len(r.Diagram.Edges)
	}
	var checkpoint pgtype.Int8
	if r.Checkpoint != nil {
		checkpoint = pgtype.Int8{Int64: int64(*r.Checkpoint), Valid: true}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analyses (
			digest, sender, status, gas_used, summary, summary_source,
			node_count, edge_count, checkpoint, result, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (digest) DO UPDATE SET
			sender = EXCLUDED.sender,
			status = EXCLUDED.status,
			gas_used = EXCLUDED.gas_used,
			summary = EXCLUDED.summary,
			summary_source = EXCLUDED.summary_source,
			node_count = EXCLUDED.node_count,
			edge_count = EXCLUDED.edge_count,
			checkpoint = EXCLUDED.checkpoint,
			result = EXCLUDED.result,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = NOW()`,
		r.Digest, r.Sender, r.Status, r.GasUsed, r.Summary, r.SummarySource,
		int32(nodes), int32(edges), checkpoint, payload,
		pgtype.Timestamptz{Time: r.AnalyzedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record analysis %s: %w", r.Digest, err)
	}
	return nil
}

const selectColumns = `digest, sender, status, gas_used, summary, summary_source,
	node_count, edge_count, checkpoint, result, analyzed_at, created_at, updated_at`

// GetAnalysis retrieves a journaled analysis. Returns pgx.ErrNoRows if the
// digest was never recorded.
func (s *Store) GetAnalysis(ctx context.Context, digest string) (a *Analysis, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM analyses WHERE digest = $1`, digest)
	a, err = scanAnalysis(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListRecentAnalyses lists journaled analyses, most recent first.
func (s *Store) ListRecentAnalyses(ctx context.Context, params ListAnalysesParams) (out []*Analysis, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	if params.Limit <= 0 {
		params.Limit = 50
	}

	var sender pgtype.Text
	if params.Sender != nil {
		sender = pgtype.Text{String: *params.Sender, Valid: true}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM analyses
		WHERE ($1::text IS NULL OR sender = $1)
		ORDER BY analyzed_at DESC, digest
		LIMIT $2 OFFSET $3`,
		sender, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out = []*Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}

// DeleteAnalysis removes a journaled analysis. Deleting a missing digest is
// not an error.
func (s *Store) DeleteAnalysis(ctx context.Context, digest string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	_, err = s.pool.Exec(ctx, `DELETE FROM analyses WHERE digest = $1`, digest)
	if err != nil {
		return fmt.Errorf("delete analysis %s: %w", digest, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, "analyses", time.Since(start).Seconds(), err)
	}
}

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var (
		a          Analysis
		checkpoint pgtype.Int8
		analyzedAt pgtype.Timestamptz
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&a.Digest, &a.Sender, &a.Status, &a.GasUsed, &a.Summary, &a.SummarySource,
		&a.NodeCount, &a.EdgeCount, &checkpoint, &a.Result,
		&analyzedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if checkpoint.Valid {
		v := checkpoint.Int64
		a.Checkpoint = &v
	}
	a.AnalyzedAt = analyzedAt.Time
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}
