package trends

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoData is returned when the source has no interest series for a topic.
var ErrNoData = errors.New("no data found")

const (
	// MaxKeywordClusters caps the rising queries kept on the measured path
	MaxKeywordClusters = 8
	// MaxTopRegions caps the region list
	MaxTopRegions = 5
	// VelocityWindow is the number of points in each velocity window
	VelocityWindow = 14
	// DefaultGrowth replaces growth text that cannot be parsed
	DefaultGrowth = 100

	minVolumeLabel = 1000
	maxVolumeLabel = 50000

	scoreRecentWeight    = 1.1
	scoreVelocityDivisor = 10.0
	scoreFloor           = 10.0
	scoreCeiling         = 100.0

	revenueScoreWeight = 0.7
	revenueOffset      = 15.0

	emergingKeywordLimit = 4
	measuredFormat       = "YouTube Tutorial / LinkedIn Newsletter"
)

// Rand is the randomness source for placeholder and synthetic values.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// SeriesPoint is a raw per-date interest value as returned by a source
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

// RisingQuery is a related query with its unparsed growth text (e.g. "+450%", "Breakout")
type RisingQuery struct {
	Query  string
	Growth string
}

// RegionInterest is relative interest for one region
type RegionInterest struct {
	Region string
	Value  float64
}

// RawData is everything one fetch attempt collects for a topic
type RawData struct {
	Series  []SeriesPoint
	Rising  []RisingQuery
	Regions []RegionInterest
}

// Fields are the scored values produced by either path before assembly
type Fields struct {
	Score              int
	TrendVelocity      float64
	CompetitionDensity CompetitionDensity
	RevenuePotential   int
	TopRegions         []string
	TrendData          []TimeSeriesPoint
	KeywordClusters    []KeywordCluster
	Insights           OpportunityInsights
}

// Engine derives report fields from raw source data
type Engine struct {
	rand Rand
	now  func() time.Time
}

// NewEngine creates a derivation engine. now may be nil, defaulting to time.Now.
func NewEngine(r Rand, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{rand: r, now: now}
}

// Derive turns raw series, rising queries and regions into scored fields.
// An empty series yields ErrNoData rather than degenerate zeros.
func (e *Engine) Derive(topic string, raw RawData) (Fields, error) {
	if len(raw.Series) == 0 {
		return Fields{}, fmt.Errorf("%w for the topic: %s", ErrNoData, topic)
	}

	series := SortSeries(raw.Series)
	values := make([]float64, len(series))
	trendData := make([]TimeSeriesPoint, len(series))
	for i, p := range series {
		values[i] = p.Value
		trendData[i] = TimeSeriesPoint{Date: p.Date, Value: int(p.Value)}
	}

	clusters := e.keywordClusters(raw.Rising)
	recent, older := WindowMeans(values)
	velocity := Velocity(recent, older)
	score := NicheScore(recent, velocity)

	return Fields{
		Score:              score,
		TrendVelocity:      velocity,
		CompetitionDensity: DensityFor(len(clusters)),
		RevenuePotential:   RevenuePotential(score),
		TopRegions:         TopRegions(raw.Regions),
		TrendData:          trendData,
		KeywordClusters:    clusters,
		Insights:           e.insights(topic, clusters),
	}, nil
}

func (e *Engine) keywordClusters(rising []RisingQuery) []KeywordCluster {
	n := len(rising)
	if n > MaxKeywordClusters {
		n = MaxKeywordClusters
	}

	clusters := make([]KeywordCluster, 0, n)
	for _, q := range rising[:n] {
		clusters = append(clusters, KeywordCluster{
			Keyword: q.Query,
			Volume:  strconv.Itoa(minVolumeLabel + e.rand.Intn(maxVolumeLabel-minVolumeLabel)),
			Growth:  ParseGrowth(q.Growth),
		})
	}
	return clusters
}

func (e *Engine) insights(topic string, clusters []KeywordCluster) OpportunityInsights {
	emerging := make([]string, 0, emergingKeywordLimit)
	for _, c := range clusters {
		if len(emerging) == emergingKeywordLimit {
			break
		}
		emerging = append(emerging, c.Keyword)
	}

	return OpportunityInsights{
		UnderservedAngles: []string{
			fmt.Sprintf("Beginner's guide to %s in %d", topic, e.now().Year()),
			fmt.Sprintf("Why %s is dominating current trends", topic),
			fmt.Sprintf("Top 5 tools for %s analysis", topic),
		},
		EmergingKeywords:  emerging,
		RecommendedFormat: measuredFormat,
	}
}

// SortSeries returns a copy of series in ascending date order. Equal dates keep source order.
func SortSeries(series []SeriesPoint) []SeriesPoint {
	sorted := make([]SeriesPoint, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// ParseGrowth reads growth text such as "+45%" or "+1,250%". Anything unparsable maps to DefaultGrowth.
func ParseGrowth(text string) int {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "+")
	growth, err := strconv.Atoi(s)
	if err != nil {
		return DefaultGrowth
	}
	return growth
}

// TopRegions orders regions by descending interest and keeps the first MaxTopRegions.
// Ties keep source order.
func TopRegions(regions []RegionInterest) []string {
	sorted := make([]RegionInterest, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	if len(sorted) > MaxTopRegions {
		sorted = sorted[:MaxTopRegions]
	}
	names := make([]string, len(sorted))
	for i, r := range sorted {
		names[i] = r.Region
	}
	return names
}

// WindowMeans returns the mean of the last VelocityWindow values and of the
// VelocityWindow values before them. Short series shrink the windows; an empty window means 0.
func WindowMeans(values []float64) (recent, older float64) {
	n := len(values)
	recentStart := max(0, n-VelocityWindow)
	olderStart := max(0, n-2*VelocityWindow)

	return mean(values[recentStart:]), mean(values[olderStart:recentStart])
}

// Velocity is the percent change from older to recent, rounded to one decimal
func Velocity(recent, older float64) float64 {
	switch {
	case older > 0:
		return roundTenth((recent - older) / older * 100)
	case recent > 0:
		return 100.0
	default:
		return 0
	}
}

// NicheScore weights recent popularity with velocity as a secondary term, bounded to [10,100]
func NicheScore(recent, velocity float64) int {
	return int(clamp(recent*scoreRecentWeight+velocity/scoreVelocityDivisor, scoreFloor, scoreCeiling))
}

// RevenuePotential is a score-derived estimate bounded to [0,100]
func RevenuePotential(score int) int {
	return int(clamp(float64(score)*revenueScoreWeight+revenueOffset, 0, 100))
}

// DensityFor classifies a cluster count. High needs 10+ clusters, which the
// MaxKeywordClusters cap currently prevents on the measured path.
func DensityFor(clusterCount int) CompetitionDensity {
	switch {
	case clusterCount < 4:
		return DensityLow
	case clusterCount < 10:
		return DensityMedium
	default:
		return DensityHigh
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
