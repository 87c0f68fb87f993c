package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// MatchHandler serves match endpoints from the tiered store.
type MatchHandler struct {
	store  *tiered.Store
	logger *slog.Logger
}

// NewMatchHandler creates a MatchHandler.
func NewMatchHandler(store *tiered.Store, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		store:  store,
		logger: logHandler(logger, "match"),
	}
}

// ListLive returns every match record currently in the live tier.
// GET /api/matches/live
func (h *MatchHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	matches, err := h.store.ListLiveMatches(r.Context())
	if err != nil {
		h.logger.Error("list live matches failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list live matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}

// Get returns one match by id, looked up in tier order.
// GET /api/matches/{id}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID := pathParam(r, "id")
	rec, err := h.store.GetMatch(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.Error("get match failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get match")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
