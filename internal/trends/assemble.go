package trends

import (
	"encoding/json"
	"errors"
	"sort"
)

// Origin tells the assembler which path produced a set of fields
type Origin struct {
	Mock bool
	// Err is the captured upstream failure for mock reports. It is nil when
	// the fallback was triggered by a no-data condition.
	Err error
}

// MeasuredOrigin is the origin of fields derived from source data
func MeasuredOrigin() Origin { return Origin{} }

// FallbackOrigin is the origin of synthetic fields. No-data triggers do not carry an error.
func FallbackOrigin(cause error) Origin {
	if cause == nil || errors.Is(cause, ErrNoData) {
		return Origin{Mock: true}
	}
	return Origin{Mock: true, Err: cause}
}

// Assemble packages measured or synthetic fields into the report contract.
// Slices are never nil and an unknown density tier is recomputed from the clusters.
func Assemble(f Fields, origin Origin) *Report {
	report := &Report{
		Score:              int(clamp(float64(f.Score), 0, 100)),
		TrendVelocity:      f.TrendVelocity,
		CompetitionDensity: f.CompetitionDensity,
		RevenuePotential:   int(clamp(float64(f.RevenuePotential), 0, 100)),
		TopRegions:         nonNil(f.TopRegions),
		TrendData:          f.TrendData,
		KeywordClusters:    f.KeywordClusters,
		OpportunityInsights: OpportunityInsights{
			UnderservedAngles: nonNil(f.Insights.UnderservedAngles),
			EmergingKeywords:  nonNil(f.Insights.EmergingKeywords),
			RecommendedFormat: f.Insights.RecommendedFormat,
		},
		IsMock: origin.Mock,
	}
	if report.TrendData == nil {
		report.TrendData = []TimeSeriesPoint{}
	}
	if report.KeywordClusters == nil {
		report.KeywordClusters = []KeywordCluster{}
	}
	if !report.CompetitionDensity.Valid() {
		report.CompetitionDensity = DensityFor(len(report.KeywordClusters))
	}
	if origin.Err != nil {
		msg := origin.Err.Error()
		report.OriginalError = &msg
	}

	report.Provenance = provenanceFor(origin.Mock)
	return report
}

// provenanceFields lists every numeric or series field tracked for provenance
var provenanceFields = []string{
	"score",
	"trend_velocity",
	"competition_density",
	"revenue_potential",
	"top_regions",
	"trend_data",
	"keyword_clusters.growth",
	"keyword_clusters.volume",
}

func provenanceFor(mock bool) map[string]Provenance {
	p := make(map[string]Provenance, len(provenanceFields))
	for _, field := range provenanceFields {
		switch {
		case mock:
			p[field] = Synthetic
		case field == "keyword_clusters.volume":
			p[field] = Placeholder
		default:
			p[field] = Measured
		}
	}
	return p
}

// FieldSet returns the sorted top-level keys of the serialized report
func FieldSet(r *Report) ([]string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
