package handler

import (
	"log/slog"
	"net/http"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// StatusHandler reports tracker state counters for dashboards.
type StatusHandler struct {
	store  *tiered.Store
	tasks  domain.TaskStore
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler. tasks may be nil.
func NewStatusHandler(store *tiered.Store, tasks domain.TaskStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		tasks:  tasks,
		logger: logHandler(logger, "status"),
	}
}

// Status returns live-tier counts and the enrichment backlog.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}

	if matches, err := h.store.ListLiveMatches(r.Context()); err == nil {
		out["live_matches"] = len(matches)
	}
	if seriesList, err := h.store.ListLiveSeries(r.Context()); err == nil {
		out["live_series"] = len(seriesList)
	}
	if h.tasks != nil {
		if n, err := h.tasks.Count(r.Context()); err == nil {
			out["pending_enrichments"] = n
		}
	}

	writeJSON(w, http.StatusOK, out)
}
