package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/nicheradar/internal/trends"
)

// DefaultListLimit bounds history queries when the caller passes no limit
const DefaultListLimit = 20

// TrendEntry is one stored report run
type TrendEntry struct {
	ID                 int64     `json:"id" db:"id"`
	RunID              string    `json:"run_id" db:"run_id"`
	Topic              string    `json:"topic" db:"topic"`
	Score              int       `json:"score" db:"score"`
	TrendVelocity      float64   `json:"trend_velocity" db:"trend_velocity"`
	CompetitionDensity string    `json:"competition_density" db:"competition_density"`
	RevenuePotential   int       `json:"revenue_potential" db:"revenue_potential"`
	IsMock             bool      `json:"is_mock" db:"is_mock"`
	OriginalError      *string   `json:"original_error" db:"original_error"`
	Attempts           int       `json:"attempts" db:"attempts"`
	Report             []byte    `json:"-" db:"report"`
	Provenance         []byte    `json:"-" db:"provenance"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// NewTrendEntry flattens a report into a storable entry
func NewTrendEntry(runID, topic string, report *trends.Report, attempts int, at time.Time) (TrendEntry, error) {
	if report == nil {
		return TrendEntry{}, errors.New("nil report")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return TrendEntry{}, fmt.Errorf("failed to marshal report: %w", err)
	}
	provenanceJSON, err := json.Marshal(report.Provenance)
	if err != nil {
		return TrendEntry{}, fmt.Errorf("failed to marshal provenance: %w", err)
	}

	return TrendEntry{
		RunID:              runID,
		Topic:              strings.TrimSpace(topic),
		Score:              report.Score,
		TrendVelocity:      report.TrendVelocity,
		CompetitionDensity: string(report.CompetitionDensity),
		RevenuePotential:   report.RevenuePotential,
		IsMock:             report.IsMock,
		OriginalError:      report.OriginalError,
		Attempts:           attempts,
		Report:             reportJSON,
		Provenance:         provenanceJSON,
		CreatedAt:          at.UTC(),
	}, nil
}

// Decode rebuilds the stored report including its provenance
func (e TrendEntry) Decode() (*trends.Report, error) {
	var report trends.Report
	if err := json.Unmarshal(e.Report, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	if len(e.Provenance) > 0 {
		if err := json.Unmarshal(e.Provenance, &report.Provenance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provenance: %w", err)
		}
	}
	return &report, nil
}

// TrendRepo stores report history
type TrendRepo interface {
	// EnsureSchema creates the trend_entries table if missing
	EnsureSchema(ctx context.Context) error

	// Insert stores entry and returns its id
	Insert(ctx context.Context, entry TrendEntry) (int64, error)

	// ListByTopic returns the newest entries for topic (case-insensitive), newest first
	ListByTopic(ctx context.Context, topic string, limit int) ([]TrendEntry, error)
}

// Repository aggregates all repository interfaces
type Repository struct {
	Trends TrendRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
