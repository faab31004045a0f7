package trends

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Bounds(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		gen := NewGenerator(rand.New(rand.NewSource(seed)), func() time.Time { return fixedNow })
		fields := gen.Generate("sourdough")

		assert.GreaterOrEqual(t, fields.Score, 65)
		assert.LessOrEqual(t, fields.Score, 85)
		assert.GreaterOrEqual(t, fields.RevenuePotential, 70)
		assert.LessOrEqual(t, fields.RevenuePotential, 95)
		assert.GreaterOrEqual(t, fields.TrendVelocity, 5.0)
		assert.LessOrEqual(t, fields.TrendVelocity, 25.0)
		assert.Contains(t, []CompetitionDensity{DensityLow, DensityMedium}, fields.CompetitionDensity)

		for _, p := range fields.TrendData {
			assert.GreaterOrEqual(t, p.Value, 40)
			assert.LessOrEqual(t, p.Value, 95)
		}
	}
}

func TestGenerator_SeriesEndsToday(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(42)), func() time.Time { return fixedNow })
	fields := gen.Generate("sourdough")

	require.Len(t, fields.TrendData, 30)
	assert.Equal(t, "2026-10-16", fields.TrendData[29].Date.Format(DateLayout))
	assert.Equal(t, "2026-09-17", fields.TrendData[0].Date.Format(DateLayout))
	for i := 1; i < len(fields.TrendData); i++ {
		assert.True(t, fields.TrendData[i].Date.After(fields.TrendData[i-1].Date), "point %d out of order", i)
	}
}

func TestGenerator_FixedTemplates(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(42)), func() time.Time { return fixedNow })
	fields := gen.Generate("kombucha")

	assert.Equal(t, []string{"United States", "United Kingdom", "Canada", "Germany", "India"}, fields.TopRegions)
	assert.Equal(t, []KeywordCluster{
		{Keyword: "kombucha optimization", Volume: "12k", Growth: 45},
		{Keyword: "best kombucha strategies", Volume: "8k", Growth: 120},
		{Keyword: "kombucha for creators", Volume: "15k", Growth: 85},
	}, fields.KeywordClusters)
	assert.Equal(t, []string{"How to scale with minimal budget", "The future of kombucha"}, fields.Insights.UnderservedAngles)
	assert.Equal(t, []string{"ai in kombucha", "kombucha automation"}, fields.Insights.EmergingKeywords)
	assert.Equal(t, "Infographic / Reel", fields.Insights.RecommendedFormat)

	fields.TopRegions[0] = "Mutated"
	assert.Equal(t, "United States", gen.Generate("kombucha").TopRegions[0])
}
