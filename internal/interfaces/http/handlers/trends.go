package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sawpanic/nicheradar/internal/application/pipeline"
)

// Trends handles GET /api/trends?topic=
func (h *Handlers) Trends(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	topic := h.defaultTopic
	if query.Has("topic") {
		topic = query.Get("topic")
	}
	if strings.TrimSpace(topic) == "" {
		h.writeError(w, r, http.StatusBadRequest, "topic_required", "topic must not be blank")
		return
	}

	out, err := h.analyzer.Run(r.Context(), topic)
	if errors.Is(err, pipeline.ErrEmptyTopic) {
		h.writeError(w, r, http.StatusBadRequest, "topic_required", "topic must not be blank")
		return
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "analysis_failed", err.Error())
		return
	}

	w.Header().Set("X-Run-ID", out.RunID)
	if out.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, out.Report)
}
