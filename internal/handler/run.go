package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/store"
)

type RunHandler struct {
	runs   *store.RunStore
	logger *slog.Logger
}

func NewRunHandler(rs *store.RunStore, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: rs, logger: logger}
}

// List returns the most recent sync runs, newest first.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}

	runs, err := h.runs.ListRecent(limit)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}

	writeJSON(w, http.StatusOK, runs)
}
