// Package fixture serves trend data from a YAML or JSON document for offline runs.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// ProviderName identifies this source in errors and metrics
const ProviderName = "fixture"

// Document is the on-disk fixture layout. Topics overrides the top-level
// data for specific topics (matched case-insensitively).
type Document struct {
	Series  []Point              `yaml:"series" json:"series"`
	Rising  []Rising             `yaml:"rising" json:"rising"`
	Regions []Region             `yaml:"regions" json:"regions"`
	Fail    string               `yaml:"fail,omitempty" json:"fail,omitempty"`
	Topics  map[string]*Document `yaml:"topics,omitempty" json:"topics,omitempty"`
}

type Point struct {
	Date  string  `yaml:"date" json:"date"`
	Value float64 `yaml:"value" json:"value"`
}

type Rising struct {
	Query  string `yaml:"query" json:"query"`
	Growth string `yaml:"growth" json:"growth"`
}

type Region struct {
	Region string  `yaml:"region" json:"region"`
	Value  float64 `yaml:"value" json:"value"`
}

// Source implements providers.Source from a Document
type Source struct {
	doc Document
}

var _ providers.Source = (*Source)(nil)

// New validates doc and returns a source over it
func New(doc Document) (*Source, error) {
	if err := doc.validate(""); err != nil {
		return nil, err
	}
	topics := make(map[string]*Document, len(doc.Topics))
	for name, d := range doc.Topics {
		topics[strings.ToLower(strings.TrimSpace(name))] = d
	}
	doc.Topics = topics
	return &Source{doc: doc}, nil
}

// Load reads a fixture file. JSON documents are accepted since they are valid YAML.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	return New(doc)
}

// Name returns the provider name
func (s *Source) Name() string { return ProviderName }

func (s *Source) InterestOverTime(ctx context.Context, topic string) ([]trends.SeriesPoint, error) {
	doc, err := s.lookup(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make([]trends.SeriesPoint, 0, len(doc.Series))
	for _, p := range doc.Series {
		// dates were checked in validate
		date, _ := time.Parse(trends.DateLayout, p.Date)
		out = append(out, trends.SeriesPoint{Date: date, Value: p.Value})
	}
	return out, nil
}

func (s *Source) RisingQueries(ctx context.Context, topic string) ([]trends.RisingQuery, error) {
	doc, err := s.lookup(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make([]trends.RisingQuery, 0, len(doc.Rising))
	for _, r := range doc.Rising {
		out = append(out, trends.RisingQuery{Query: r.Query, Growth: r.Growth})
	}
	return out, nil
}

func (s *Source) InterestByRegion(ctx context.Context, topic string) ([]trends.RegionInterest, error) {
	doc, err := s.lookup(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make([]trends.RegionInterest, 0, len(doc.Regions))
	for _, r := range doc.Regions {
		out = append(out, trends.RegionInterest{Region: r.Region, Value: r.Value})
	}
	return out, nil
}

func (s *Source) lookup(ctx context.Context, topic string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := &s.doc
	if d, ok := s.doc.Topics[strings.ToLower(strings.TrimSpace(topic))]; ok {
		doc = d
	}
	if doc.Fail != "" {
		return nil, errors.New(doc.Fail)
	}
	return doc, nil
}

func (d *Document) validate(scope string) error {
	for i, p := range d.Series {
		if _, err := time.Parse(trends.DateLayout, p.Date); err != nil {
			return fmt.Errorf("fixture%s series[%d]: invalid date %q", scope, i, p.Date)
		}
	}
	for name, sub := range d.Topics {
		if sub == nil {
			return fmt.Errorf("fixture topic %q is empty", name)
		}
		if len(sub.Topics) > 0 {
			return fmt.Errorf("fixture topic %q: nested topics are not supported", name)
		}
		if err := sub.validate(fmt.Sprintf(" topic %q", name)); err != nil {
			return err
		}
	}
	return nil
}
