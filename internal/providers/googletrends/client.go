// Package googletrends reads interest data from the public Google Trends web endpoints.
package googletrends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// ProviderName identifies this source in errors, metrics and breaker names
const ProviderName = "google_trends"

const (
	widgetTimeseries = "TIMESERIES"
	widgetRelated    = "RELATED_QUERIES"
	widgetGeo        = "GEO_MAP"

	exploreTTL   = 5 * time.Minute
	maxErrorBody = 256
)

// Config holds Google Trends client configuration
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Timeframe      string        `yaml:"timeframe"`
	Language       string        `yaml:"hl"`
	TZOffset       int           `yaml:"tz"`
	Geo            string        `yaml:"geo"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// DefaultConfig returns the three month, en-US, US-central timezone query window
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://trends.google.com",
		Timeframe:      "today 3-m",
		Language:       "en-US",
		TZOffset:       360,
		Geo:            "",
		RequestTimeout: 15 * time.Second,
		UserAgent:      "Mozilla/5.0 (compatible; nicheradar/1.0)",
	}
}

// Client implements providers.Source against trends.google.com
type Client struct {
	httpClient *http.Client
	config     Config

	mu      sync.Mutex
	warmed  bool
	explore map[string]exploreEntry
}

type exploreEntry struct {
	widgets   map[string]widget
	fetchedAt time.Time
}

type widget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

var _ providers.Source = (*Client)(nil)

// NewClient creates a client with its own cookie jar
func NewClient(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeframe == "" {
		config.Timeframe = def.Timeframe
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	jar, _ := cookiejar.New(nil)
	return &Client{
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Jar:     jar,
		},
		config:  config,
		explore: make(map[string]exploreEntry),
	}
}

// Name returns the provider name
func (c *Client) Name() string { return ProviderName }

// InterestOverTime returns the daily interest series for topic
func (c *Client) InterestOverTime(ctx context.Context, topic string) ([]trends.SeriesPoint, error) {
	w, ok, err := c.widget(ctx, topic, widgetTimeseries)
	if err != nil || !ok {
		return nil, err
	}

	var payload struct {
		Default struct {
			TimelineData []struct {
				Time  string    `json:"time"`
				Value []float64 `json:"value"`
			} `json:"timelineData"`
		} `json:"default"`
	}
	if err := c.widgetData(ctx, topic, "multiline", w.Request, w.Token, &payload); err != nil {
		return nil, err
	}

	points := make([]trends.SeriesPoint, 0, len(payload.Default.TimelineData))
	for _, row := range payload.Default.TimelineData {
		if len(row.Value) == 0 {
			continue
		}
		secs, err := strconv.ParseInt(row.Time, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse timeline time %q: %w", row.Time, err)
		}
		points = append(points, trends.SeriesPoint{
			Date:  time.Unix(secs, 0).UTC(),
			Value: row.Value[0],
		})
	}
	return points, nil
}

// RisingQueries returns the rising related queries for topic
func (c *Client) RisingQueries(ctx context.Context, topic string) ([]trends.RisingQuery, error) {
	w, ok, err := c.widget(ctx, topic, widgetRelated)
	if err != nil || !ok {
		return nil, err
	}

	var payload struct {
		Default struct {
			RankedList []struct {
				RankedKeyword []struct {
					Query          string `json:"query"`
					FormattedValue string `json:"formattedValue"`
				} `json:"rankedKeyword"`
			} `json:"rankedList"`
		} `json:"default"`
	}
	if err := c.widgetData(ctx, topic, "relatedsearches", w.Request, w.Token, &payload); err != nil {
		return nil, err
	}

	// rankedList[0] is "top", rankedList[1] is "rising"
	if len(payload.Default.RankedList) < 2 {
		return nil, nil
	}
	rows := payload.Default.RankedList[1].RankedKeyword
	out := make([]trends.RisingQuery, 0, len(rows))
	for _, row := range rows {
		out = append(out, trends.RisingQuery{Query: row.Query, Growth: row.FormattedValue})
	}
	return out, nil
}

// InterestByRegion returns country-level interest for topic
func (c *Client) InterestByRegion(ctx context.Context, topic string) ([]trends.RegionInterest, error) {
	w, ok, err := c.widget(ctx, topic, widgetGeo)
	if err != nil || !ok {
		return nil, err
	}

	var req map[string]any
	if err := json.Unmarshal(w.Request, &req); err != nil {
		return nil, fmt.Errorf("decode geo widget request: %w", err)
	}
	req["resolution"] = "COUNTRY"
	req["includeLowSearchVolumeGeos"] = true
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode geo widget request: %w", err)
	}

	var payload struct {
		Default struct {
			GeoMapData []struct {
				GeoName string    `json:"geoName"`
				Value   []float64 `json:"value"`
			} `json:"geoMapData"`
		} `json:"default"`
	}
	if err := c.widgetData(ctx, topic, "comparedgeo", reqJSON, w.Token, &payload); err != nil {
		return nil, err
	}

	out := make([]trends.RegionInterest, 0, len(payload.Default.GeoMapData))
	for _, row := range payload.Default.GeoMapData {
		if len(row.Value) == 0 {
			continue
		}
		out = append(out, trends.RegionInterest{Region: row.GeoName, Value: row.Value[0]})
	}
	return out, nil
}

// widget returns the named explore widget for topic, fetching explore when needed.
// ok is false when the upstream did not offer that widget.
func (c *Client) widget(ctx context.Context, topic, id string) (widget, bool, error) {
	c.mu.Lock()
	entry, cached := c.explore[topic]
	c.mu.Unlock()

	if !cached || time.Since(entry.fetchedAt) > exploreTTL {
		widgets, err := c.fetchExplore(ctx, topic)
		if err != nil {
			return widget{}, false, err
		}
		entry = exploreEntry{widgets: widgets, fetchedAt: time.Now()}
		c.mu.Lock()
		c.explore[topic] = entry
		c.mu.Unlock()
	}

	w, ok := entry.widgets[id]
	if !ok {
		log.Debug().Str("topic", topic).Str("widget", id).Msg("Explore response has no widget")
	}
	return w, ok, nil
}

func (c *Client) fetchExplore(ctx context.Context, topic string) (map[string]widget, error) {
	if err := c.warmUp(ctx); err != nil {
		return nil, err
	}

	req, err := json.Marshal(map[string]any{
		"comparisonItem": []map[string]string{{
			"keyword": topic,
			"time":    c.config.Timeframe,
			"geo":     c.config.Geo,
		}},
		"category": 0,
		"property": "",
	})
	if err != nil {
		return nil, fmt.Errorf("encode explore request: %w", err)
	}

	params := c.baseParams()
	params.Set("req", string(req))

	var payload struct {
		Widgets []widget `json:"widgets"`
	}
	if err := c.getJSON(ctx, "/trends/api/explore", params, &payload); err != nil {
		return nil, err
	}

	widgets := make(map[string]widget, len(payload.Widgets))
	for _, w := range payload.Widgets {
		for _, id := range []string{widgetTimeseries, widgetRelated, widgetGeo} {
			if strings.HasPrefix(w.ID, id) {
				if _, seen := widgets[id]; !seen {
					widgets[id] = w
				}
			}
		}
	}
	return widgets, nil
}

// widgetData fetches one widget payload. A failure drops the cached explore
// tokens for topic so the next attempt starts from a fresh explore call.
func (c *Client) widgetData(ctx context.Context, topic, kind string, request json.RawMessage, token string, out any) error {
	params := c.baseParams()
	params.Set("req", string(request))
	params.Set("token", token)
	if err := c.getJSON(ctx, "/trends/api/widgetdata/"+kind, params, out); err != nil {
		c.mu.Lock()
		delete(c.explore, topic)
		c.mu.Unlock()
		return err
	}
	return nil
}

// warmUp fetches the landing page once so the jar holds the session cookie
func (c *Client) warmUp(ctx context.Context) error {
	c.mu.Lock()
	warmed := c.warmed
	c.mu.Unlock()
	if warmed {
		return nil
	}

	geo := "US"
	if len(c.config.Language) >= 2 {
		geo = strings.ToUpper(c.config.Language[len(c.config.Language)-2:])
	}
	resp, err := c.do(ctx, "/", url.Values{"geo": {geo}})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.mu.Lock()
	c.warmed = true
	c.mu.Unlock()
	return nil
}

func (c *Client) baseParams() url.Values {
	return url.Values{
		"hl": {c.config.Language},
		"tz": {strconv.Itoa(c.config.TZOffset)},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(stripXSSI(body), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do issues a GET and maps non-2xx responses to ProviderError
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	endpoint := c.config.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept-Language", c.config.Language)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &providers.ProviderError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Retryable:  providers.StatusRetryable(resp.StatusCode),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

// stripXSSI removes the )]}' guard Google prepends to JSON bodies
func stripXSSI(body []byte) []byte {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, []byte(")]}'"))
	body = bytes.TrimPrefix(body, []byte(","))
	return bytes.TrimSpace(body)
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
