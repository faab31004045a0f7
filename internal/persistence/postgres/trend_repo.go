package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/nicheradar/internal/persistence"
)

const trendEntriesSchema = `
	CREATE TABLE IF NOT EXISTS trend_entries (
		id                  BIGSERIAL PRIMARY KEY,
		run_id              TEXT NOT NULL,
		topic               TEXT NOT NULL,
		score               INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		trend_velocity      DOUBLE PRECISION NOT NULL,
		competition_density TEXT NOT NULL,
		revenue_potential   INTEGER NOT NULL CHECK (revenue_potential BETWEEN 0 AND 100),
		is_mock             BOOLEAN NOT NULL,
		original_error      TEXT,
		attempts            INTEGER NOT NULL,
		report              JSONB NOT NULL,
		provenance          JSONB NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_trend_entries_topic_created
		ON trend_entries (lower(topic), created_at DESC);`

// trendRepo implements TrendRepo for PostgreSQL
type trendRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTrendRepo creates a new PostgreSQL trend history repository
func NewTrendRepo(db *sqlx.DB, timeout time.Duration) persistence.TrendRepo {
	return &trendRepo{
		db:      db,
		timeout: timeout,
	}
}

func (r *trendRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, trendEntriesSchema); err != nil {
		return fmt.Errorf("failed to create trend_entries schema: %w", err)
	}
	return nil
}

func (r *trendRepo) Insert(ctx context.Context, entry persistence.TrendEntry) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trend_entries
		(run_id, topic, score, trend_velocity, competition_density, revenue_potential,
		 is_mock, original_error, attempts, report, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		entry.RunID,
		entry.Topic,
		entry.Score,
		entry.TrendVelocity,
		entry.CompetitionDensity,
		entry.RevenuePotential,
		entry.IsMock,
		entry.OriginalError,
		entry.Attempts,
		entry.Report,
		entry.Provenance,
		entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trend entry: %w", err)
	}
	return id, nil
}

func (r *trendRepo) ListByTopic(ctx context.Context, topic string, limit int) ([]persistence.TrendEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	query := `
		SELECT id, run_id, topic, score, trend_velocity, competition_density, revenue_potential,
		       is_mock, original_error, attempts, report, provenance, created_at
		FROM trend_entries
		WHERE lower(topic) = lower($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	entries := []persistence.TrendEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, topic, limit); err != nil {
		return nil, fmt.Errorf("failed to list trend entries: %w", err)
	}
	return entries, nil
}
