package googletrends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nicheradar/internal/providers"
)

const exploreBody = `)]}'
{"widgets":[
 {"id":"TIMESERIES","token":"ts-token","request":{"time":"2026-07-16 2026-10-16"}},
 {"id":"GEO_MAP","token":"geo-token","request":{"geo":{},"resolution":"REGION"}},
 {"id":"RELATED_TOPICS","token":"topics-token","request":{}},
 {"id":"RELATED_QUERIES","token":"rq-token","request":{"restriction":{}}}
]}`

type fakeTrends struct {
	explores    int32
	sawCookie   int32
	exploreBody string
	status      map[string]int
}

func (f *fakeTrends) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	fail := func(w http.ResponseWriter, path string) bool {
		if code, ok := f.status[path]; ok {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(code)
			fmt.Fprint(w, "slow down")
			return true
		}
		return false
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "NID", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/trends/api/explore", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.explores, 1)
		if _, err := r.Cookie("NID"); err == nil {
			atomic.AddInt32(&f.sawCookie, 1)
		}
		if fail(w, "explore") {
			return
		}
		assert.Equal(t, "en-US", r.URL.Query().Get("hl"))
		assert.Equal(t, "360", r.URL.Query().Get("tz"))

		var req struct {
			ComparisonItem []struct {
				Keyword string `json:"keyword"`
				Time    string `json:"time"`
			} `json:"comparisonItem"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("req")), &req))
		if assert.Len(t, req.ComparisonItem, 1) {
			assert.Equal(t, "today 3-m", req.ComparisonItem[0].Time)
		}

		body := f.exploreBody
		if body == "" {
			body = exploreBody
		}
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/trends/api/widgetdata/multiline", func(w http.ResponseWriter, r *http.Request) {
		if fail(w, "multiline") {
			return
		}
		assert.Equal(t, "ts-token", r.URL.Query().Get("token"))
		fmt.Fprint(w, `)]}',
{"default":{"timelineData":[
 {"time":"1791244800","formattedTime":"Oct 6, 2026","value":[55],"hasData":[true]},
 {"time":"1791331200","formattedTime":"Oct 7, 2026","value":[],"hasData":[false]},
 {"time":"1791417600","formattedTime":"Oct 8, 2026","value":[61],"hasData":[true]}
]}}`)
	})
	mux.HandleFunc("/trends/api/widgetdata/relatedsearches", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rq-token", r.URL.Query().Get("token"))
		fmt.Fprint(w, `)]}',
{"default":{"rankedList":[
 {"rankedKeyword":[{"query":"top query","value":100,"formattedValue":"100"}]},
 {"rankedKeyword":[
   {"query":"sourdough starter","value":250,"formattedValue":"+250%"},
   {"query":"sourdough discard","value":5000,"formattedValue":"Breakout"}
 ]}
]}}`)
	})
	mux.HandleFunc("/trends/api/widgetdata/comparedgeo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "geo-token", r.URL.Query().Get("token"))
		var req map[string]any
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("req")), &req))
		assert.Equal(t, "COUNTRY", req["resolution"])
		assert.Equal(t, true, req["includeLowSearchVolumeGeos"])
		fmt.Fprint(w, `)]}',
{"default":{"geoMapData":[
 {"geoCode":"CA","geoName":"Canada","value":[80]},
 {"geoCode":"AU","geoName":"Australia","value":[100]},
 {"geoCode":"AQ","geoName":"Antarctica","value":[]}
]}}`)
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeTrends) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RequestTimeout = 2 * time.Second
	return NewClient(cfg)
}

func TestClient_FetchesAllThreeSignals(t *testing.T) {
	fake := &fakeTrends{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	series, err := client.InterestOverTime(ctx, "sourdough")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 55.0, series[0].Value)
	assert.Equal(t, time.Date(2026, 10, 6, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, 61.0, series[1].Value)

	rising, err := client.RisingQueries(ctx, "sourdough")
	require.NoError(t, err)
	require.Len(t, rising, 2)
	assert.Equal(t, "sourdough starter", rising[0].Query)
	assert.Equal(t, "+250%", rising[0].Growth)
	assert.Equal(t, "Breakout", rising[1].Growth)

	regions, err := client.InterestByRegion(ctx, "sourdough")
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "Canada", regions[0].Region)
	assert.Equal(t, 100.0, regions[1].Value)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.explores), "explore tokens are reused per topic")
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.sawCookie), "warm-up cookie is sent with explore")
	assert.Equal(t, ProviderName, client.Name())
}

func TestClient_MissingWidgetIsEmpty(t *testing.T) {
	fake := &fakeTrends{exploreBody: `)]}'
{"widgets":[{"id":"TIMESERIES","token":"ts-token","request":{}}]}`}
	client := newTestClient(t, fake)

	rising, err := client.RisingQueries(context.Background(), "obscure topic")
	require.NoError(t, err)
	assert.Empty(t, rising)

	regions, err := client.InterestByRegion(context.Background(), "obscure topic")
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestClient_TooManyRequestsIsRetryable(t *testing.T) {
	fake := &fakeTrends{status: map[string]int{"explore": http.StatusTooManyRequests}}
	client := newTestClient(t, fake)

	_, err := client.InterestOverTime(context.Background(), "sourdough")
	require.Error(t, err)

	var perr *providers.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.True(t, perr.Retryable)
	assert.Equal(t, 7*time.Second, perr.RetryAfter)
	assert.Equal(t, "slow down", perr.Message)
}

func TestClient_ClientErrorIsTerminal(t *testing.T) {
	fake := &fakeTrends{status: map[string]int{"multiline": http.StatusBadRequest}}
	client := newTestClient(t, fake)

	_, err := client.InterestOverTime(context.Background(), "sourdough")
	var perr *providers.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Retryable)
	assert.False(t, providers.IsRetryable(err))

	// the failed widget call drops cached tokens
	_, _ = client.InterestOverTime(context.Background(), "sourdough")
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.explores))
}

func TestStripXSSI(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(")]}'\n{\"a\":1}"))))
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(")]}',\n{\"a\":1}"))))
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(`{"a":1}`))))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2026 07:28:00 GMT"))
}
