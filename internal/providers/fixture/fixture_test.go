package fixture

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nicheradar/internal/trends"
)

const sampleYAML = `
series:
  - {date: "2026-10-14", value: 40}
  - {date: "2026-10-15", value: 42.7}
rising:
  - {query: "home espresso", growth: "+45%"}
regions:
  - {region: "Italy", value: 100}
topics:
  Sourdough:
    series:
      - {date: "2026-10-16", value: 60}
    regions:
      - {region: "Canada", value: 80}
  broken:
    fail: "upstream returned 503"
`

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	src, err := Load(writeFixture(t, "fixture.yaml", sampleYAML))
	require.NoError(t, err)
	ctx := context.Background()

	series, err := src.InterestOverTime(ctx, "espresso")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, 42.7, series[1].Value)

	rising, err := src.RisingQueries(ctx, "espresso")
	require.NoError(t, err)
	require.Len(t, rising, 1)
	assert.Equal(t, "+45%", rising[0].Growth)

	assert.Equal(t, ProviderName, src.Name())
}

func TestLoad_TopicOverride(t *testing.T) {
	src, err := Load(writeFixture(t, "fixture.yaml", sampleYAML))
	require.NoError(t, err)
	ctx := context.Background()

	series, err := src.InterestOverTime(ctx, "  sourdough ")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 60.0, series[0].Value)

	rising, err := src.RisingQueries(ctx, "sourdough")
	require.NoError(t, err)
	assert.Empty(t, rising)

	regions, err := src.InterestByRegion(ctx, "sourdough")
	require.NoError(t, err)
	assert.Equal(t, "Canada", regions[0].Region)
}

func TestLoad_FailOption(t *testing.T) {
	src, err := Load(writeFixture(t, "fixture.yaml", sampleYAML))
	require.NoError(t, err)

	_, err = src.InterestOverTime(context.Background(), "broken")
	assert.EqualError(t, err, "upstream returned 503")
}

func TestLoad_JSON(t *testing.T) {
	src, err := Load(writeFixture(t, "fixture.json", `{"series":[{"date":"2026-10-16","value":5}],"rising":[],"regions":[]}`))
	require.NoError(t, err)

	series, err := src.InterestOverTime(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, series, 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read fixture file")

	_, err = Load(writeFixture(t, "bad.yaml", "series: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse fixture file")

	_, err = Load(writeFixture(t, "date.yaml", "series:\n  - {date: \"16/10/2026\", value: 1}\n"))
	assert.ErrorContains(t, err, "invalid date")
}

func TestSource_HonoursCancelledContext(t *testing.T) {
	src, err := New(Document{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.InterestByRegion(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_UnorderedSeriesDerivesChronologically(t *testing.T) {
	src, err := Load(writeFixture(t, "unordered.yaml", `
series:
  - {date: "2026-10-03", value: 90}
  - {date: "2026-10-01", value: 10}
  - {date: "2026-10-02", value: 50}
`))
	require.NoError(t, err)

	series, err := src.InterestOverTime(context.Background(), "anything")
	require.NoError(t, err)

	engine := trends.NewEngine(rand.New(rand.NewSource(1)), time.Now)
	fields, err := engine.Derive("anything", trends.RawData{Series: series})
	require.NoError(t, err)

	require.Len(t, fields.TrendData, 3)
	assert.Equal(t, "2026-10-01", fields.TrendData[0].Date.Format(trends.DateLayout))
	assert.Equal(t, []int{10, 50, 90}, []int{fields.TrendData[0].Value, fields.TrendData[1].Value, fields.TrendData[2].Value})
}
