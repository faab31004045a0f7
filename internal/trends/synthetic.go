package trends

import (
	"fmt"
	"math"
	"time"
)

const (
	syntheticPoints = 30
	syntheticFormat = "Infographic / Reel"
)

// syntheticRegions is the canonical region list of every synthetic report
var syntheticRegions = []string{"United States", "United Kingdom", "Canada", "Germany", "India"}

// Generator produces bounded placeholder fields when no measured data is available
type Generator struct {
	rand Rand
	now  func() time.Time
}

// NewGenerator creates a synthetic fallback generator. now may be nil, defaulting to time.Now.
func NewGenerator(r Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rand: r, now: now}
}

// Generate builds synthetic fields for topic.
// The trend series covers the 30 days ending today in chronological order.
func (g *Generator) Generate(topic string) Fields {
	today := truncateDay(g.now())
	series := make([]TimeSeriesPoint, syntheticPoints)
	for i := range series {
		series[i] = TimeSeriesPoint{
			Date:  today.AddDate(0, 0, i-(syntheticPoints-1)),
			Value: g.between(40, 95),
		}
	}

	density := DensityLow
	if g.rand.Intn(2) == 1 {
		density = DensityMedium
	}

	return Fields{
		Score:              g.between(65, 85),
		TrendVelocity:      math.Round((5.0+g.rand.Float64()*20.0)*10) / 10,
		CompetitionDensity: density,
		RevenuePotential:   g.between(70, 95),
		TopRegions:         append([]string(nil), syntheticRegions...),
		TrendData:          series,
		KeywordClusters: []KeywordCluster{
			{Keyword: fmt.Sprintf("%s optimization", topic), Volume: "12k", Growth: 45},
			{Keyword: fmt.Sprintf("best %s strategies", topic), Volume: "8k", Growth: 120},
			{Keyword: fmt.Sprintf("%s for creators", topic), Volume: "15k", Growth: 85},
		},
		Insights: OpportunityInsights{
			UnderservedAngles: []string{
				"How to scale with minimal budget",
				fmt.Sprintf("The future of %s", topic),
			},
			EmergingKeywords: []string{
				fmt.Sprintf("ai in %s", topic),
				fmt.Sprintf("%s automation", topic),
			},
			RecommendedFormat: syntheticFormat,
		},
	}
}

// between returns a uniform integer in [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rand.Intn(hi-lo+1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
