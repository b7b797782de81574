package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/store"
)

type VenueHandler struct {
	venues *store.VenueStore
	logger *slog.Logger
}

func NewVenueHandler(vs *store.VenueStore, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{venues: vs, logger: logger}
}

func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	venues, err := h.venues.List()
	if err != nil {
		h.logger.Error("list venues", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list venues")
		return
	}
	if venues == nil {
		venues = []model.VenueRecord{}
	}
	writeJSON(w, http.StatusOK, venues)
}
