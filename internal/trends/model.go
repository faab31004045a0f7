package trends

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for trend points on the wire.
const DateLayout = "2006-01-02"

// CompetitionDensity is the coarse competition tier of a topic
type CompetitionDensity string

const (
	DensityLow    CompetitionDensity = "Low"
	DensityMedium CompetitionDensity = "Medium"
	DensityHigh   CompetitionDensity = "High"
)

// Valid reports whether d is one of the three known tiers
func (d CompetitionDensity) Valid() bool {
	switch d {
	case DensityLow, DensityMedium, DensityHigh:
		return true
	}
	return false
}

// TimeSeriesPoint is one day of interest on the 0-100 scale.
type TimeSeriesPoint struct {
	Date  time.Time
	Value int
}

type timeSeriesPointJSON struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// MarshalJSON renders the point with a calendar date
func (p TimeSeriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeSeriesPointJSON{
		Date:  p.Date.Format(DateLayout),
		Value: p.Value,
	})
}

// UnmarshalJSON parses a point rendered by MarshalJSON
func (p *TimeSeriesPoint) UnmarshalJSON(data []byte) error {
	var raw timeSeriesPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("invalid trend point date %q: %w", raw.Date, err)
	}
	p.Date = date
	p.Value = raw.Value
	return nil
}

// KeywordCluster is a related query with its growth signal.
// Volume is a display label and is never a measured quantity.
type KeywordCluster struct {
	Keyword string `json:"keyword"`
	Volume  string `json:"volume"`
	Growth  int    `json:"growth"`
}

// OpportunityInsights holds the content recommendations for a topic
type OpportunityInsights struct {
	UnderservedAngles []string `json:"underserved_angles"`
	EmergingKeywords  []string `json:"emerging_keywords"`
	RecommendedFormat string   `json:"recommended_format"`
}

// Provenance classifies where a field value came from
type Provenance string

const (
	// Measured values are derived from upstream telemetry.
	Measured Provenance = "measured"
	// Placeholder values are random display values on an otherwise measured report.
	Placeholder Provenance = "placeholder"
	// Synthetic values come from the fallback generator.
	Synthetic Provenance = "synthetic"
)

// Report is the single output contract shared by the measured and the synthetic path.
// Field order matches the serialized key order.
type Report struct {
	Score               int                 `json:"score"`
	TrendVelocity       float64             `json:"trend_velocity"`
	CompetitionDensity  CompetitionDensity  `json:"competition_density"`
	RevenuePotential    int                 `json:"revenue_potential"`
	TopRegions          []string            `json:"top_regions"`
	TrendData           []TimeSeriesPoint   `json:"trend_data"`
	KeywordClusters     []KeywordCluster    `json:"keyword_clusters"`
	OpportunityInsights OpportunityInsights `json:"opportunity_insights"`
	IsMock              bool                `json:"is_mock"`
	OriginalError       *string             `json:"original_error"`

	// Provenance is kept off the wire contract; history and logs carry it.
	Provenance map[string]Provenance `json:"-"`
}

// Path names the pipeline branch that produced the report
func (r *Report) Path() string {
	if r.IsMock {
		return "mock"
	}
	return "real"
}
