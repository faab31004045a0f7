package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/nicheradar/internal/metrics"
	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/ratelimit"
	"github.com/sawpanic/nicheradar/internal/persistence"
)

const cachePingTimeout = time.Second

// HealthResponse is the GET /health body
type HealthResponse struct {
	Status        string                            `json:"status"`
	Timestamp     time.Time                         `json:"timestamp"`
	UptimeSeconds int64                             `json:"uptime_seconds"`
	Metrics       metrics.Snapshot                  `json:"metrics"`
	RateLimits    map[string]ratelimit.LimiterStats `json:"rate_limits,omitempty"`
	Throttled     bool                              `json:"throttled"`
	Budget        *budget.Stats                     `json:"budget,omitempty"`
	Cache         *CacheHealth                      `json:"cache,omitempty"`
	Database      *persistence.HealthCheck          `json:"database,omitempty"`
}

// CacheHealth describes the report cache backend
type CacheHealth struct {
	Backend string `json:"backend"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health. It reports degraded when a guard or backing store
// is unhealthy: an open breaker, a spent budget or a failed ping.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}

	snap, err := h.metrics.Snapshot()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to gather metrics snapshot")
	}
	resp.Metrics = snap
	for _, state := range snap.Breakers {
		if state == "open" {
			resp.Status = "degraded"
		}
	}

	if h.limiter != nil {
		resp.RateLimits = h.limiter.Stats()
		for _, s := range resp.RateLimits {
			if s.IsThrottled() {
				resp.Throttled = true
			}
		}
	}

	if h.quota != nil {
		stats := h.quota.Stats()
		resp.Budget = &stats
		if stats.IsExhausted {
			resp.Status = "degraded"
		}
	}

	if h.cache != nil {
		check := &CacheHealth{Backend: h.cache.Kind(), Healthy: true}
		if p, ok := h.cache.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), cachePingTimeout)
			if err := p.Ping(ctx); err != nil {
				check.Healthy = false
				check.Error = err.Error()
				resp.Status = "degraded"
			}
			cancel()
		}
		resp.Cache = check
	}

	if h.store != nil {
		check := h.store.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
