package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// SeriesHandler serves series endpoints from the tiered store.
type SeriesHandler struct {
	store       *tiered.Store
	seriesStore domain.SeriesStore
	logger      *slog.Logger
}

// NewSeriesHandler creates a SeriesHandler.
func NewSeriesHandler(store *tiered.Store, seriesStore domain.SeriesStore, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{
		store:       store,
		seriesStore: seriesStore,
		logger:      logHandler(logger, "series"),
	}
}

// ListLive returns every series currently tracked in the live tier, most
// recently updated first.
// GET /api/series/live
func (h *SeriesHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	seriesList, err := h.store.ListLiveSeries(r.Context())
	if err != nil {
		h.logger.Error("list live series failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list live series")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": seriesList,
		"count":  len(seriesList),
	})
}

// ListConcluded returns concluded series from the historical tier with
// pagination and optional since/until filters (RFC 3339).
// GET /api/series/concluded
func (h *SeriesHandler) ListConcluded(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		opts.Since = &t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		opts.Until = &t
	}

	seriesList, err := h.seriesStore.ListConcluded(r.Context(), opts)
	if err != nil {
		h.logger.Error("list concluded series failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list concluded series")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": seriesList,
		"count":  len(seriesList),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// Get returns one series by id, looked up in tier order.
// GET /api/series/{id}
func (h *SeriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	seriesID := pathParam(r, "id")
	ser, err := h.store.GetSeries(r.Context(), seriesID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "series not found")
			return
		}
		h.logger.Error("get series failed",
			slog.String("series_id", seriesID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get series")
		return
	}
	writeJSON(w, http.StatusOK, ser)
}

// Matches returns the member matches of a series ordered by game number.
// GET /api/series/{id}/matches
func (h *SeriesHandler) Matches(w http.ResponseWriter, r *http.Request) {
	seriesID := pathParam(r, "id")
	matches, err := h.store.SeriesMatches(r.Context(), seriesID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "series not found")
			return
		}
		h.logger.Error("series matches failed",
			slog.String("series_id", seriesID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list series matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series_id": seriesID,
		"matches":   matches,
		"count":     len(matches),
	})
}
