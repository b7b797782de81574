package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/store"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

var sections = map[model.Section]bool{
	model.SectionDowntown: true,
	model.SectionMilitary: true,
	model.SectionArena:    true,
}

type EventHandler struct {
	events *store.EventStore
	loc    *time.Location
	logger *slog.Logger
}

// NewEventHandler serves the read-only event API. Date-only query values
// are interpreted in loc.
func NewEventHandler(es *store.EventStore, loc *time.Location, logger *slog.Logger) *EventHandler {
	if loc == nil {
		loc = time.Local
	}
	return &EventHandler{events: es, loc: loc, logger: logger}
}

// List returns upcoming confirmed events.
// Query: section, category, source, from, to (RFC3339 or YYYY-MM-DD), limit.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EventFilter{
		Section:  model.Section(q.Get("section")),
		Category: q.Get("category"),
		Source:   model.Source(q.Get("source")),
		Limit:    defaultEventLimit,
	}
	if f.Section != "" && !sections[f.Section] {
		writeError(w, http.StatusBadRequest, "unknown section")
		return
	}

	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = h.parseTime(v); err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339 or YYYY-MM-DD format")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = h.parseTime(v); err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339 or YYYY-MM-DD format")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxEventLimit)
	}

	events, err := h.events.ListUpcoming(f)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.StoredEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, s, h.loc)
}
