package handlers

import (
	"net/http"
	"time"

	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
)

// StatsHandler serves strategy statistics to admins.
type StatsHandler struct {
	recorder *stats.Recorder
	now      func() time.Time
}

func NewStatsHandler(recorder *stats.Recorder) *StatsHandler {
	return &StatsHandler{recorder: recorder, now: time.Now}
}

// Strategies handles GET /api/v1/admin/stats/strategies?window=24h.
// Without a window every recorded attempt is summarized.
func (h *StatsHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 24h")
			return
		}
		since = h.now().Add(-window)
	}
	sum, err := h.recorder.Summary(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to summarize strategies")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
