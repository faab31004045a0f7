package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/nicheradar/internal/application/pipeline"
	"github.com/sawpanic/nicheradar/internal/data/cache"
	"github.com/sawpanic/nicheradar/internal/metrics"
	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/ratelimit"
	"github.com/sawpanic/nicheradar/internal/persistence"
)

type contextKey string

// RequestIDKey is the context key holding the request id
const RequestIDKey contextKey = "request_id"

// Analyzer is the pipeline surface the handlers need
type Analyzer interface {
	Run(ctx context.Context, topic string) (*pipeline.Outcome, error)
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	analyzer     Analyzer
	metrics      *metrics.Registry
	store        persistence.RepositoryHealth
	limiter      *ratelimit.Limiter
	quota        *budget.Tracker
	cache        cache.Cache
	defaultTopic string
	started      time.Time
}

// NewHandlers creates a handlers instance. metrics and store may be nil.
func NewHandlers(analyzer Analyzer, m *metrics.Registry, store persistence.RepositoryHealth, defaultTopic string) *Handlers {
	return &Handlers{
		analyzer:     analyzer,
		metrics:      m,
		store:        store,
		defaultTopic: defaultTopic,
		started:      time.Now(),
	}
}

// WithGuards reports the source rate limiter and daily budget on /health
func (h *Handlers) WithGuards(limiter *ratelimit.Limiter, quota *budget.Tracker) *Handlers {
	h.limiter = limiter
	h.quota = quota
	return h
}

// WithCache reports the report cache backend on /health
func (h *Handlers) WithCache(c cache.Cache) *Handlers {
	h.cache = c
	return h
}

// ErrorResponse is the JSON body for every non-2xx answer
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes JSON response with proper error handling
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes standardized error response
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// RequestID returns the request id stored by the server middleware
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
