package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

const ticketingMaxPages = 20

type ticketingMeta struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type ticketingPage[T any] struct {
	Data []T           `json:"data"`
	Meta ticketingMeta `json:"meta"`
}

type ticketingEvent struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Categories  []string `json:"categories"`
	URL         string   `json:"url"`
	TicketURL   string   `json:"ticket_url"`
	ImageURL    string   `json:"image_url"`
	VenueID     string   `json:"venue_id"`
	UpdatedAt   string   `json:"updated_at"`
}

type ticketingOccurrence struct {
	ID       string `json:"id"`
	EventID  string `json:"event_id"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Deleted  bool   `json:"deleted"`
}

type ticketingVenue struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Zip       string   `json:"zip"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Phone     string   `json:"phone"`
}

// venueCache holds venues looked up during one Fetch call.
type venueCache map[string]*model.Venue

// Ticketing reads the arena ticketing system's REST API.
type Ticketing struct {
	cfg config.TicketingSource
	env Env
}

func NewTicketing(cfg config.TicketingSource, env Env) *Ticketing {
	return &Ticketing{cfg: cfg, env: env}
}

func (t *Ticketing) Name() model.Source { return model.SourceTicketing }

func (t *Ticketing) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	events, err := fetchPages[ticketingEvent](ctx, t.env, func(page int) string {
		return t.endpoint("events", url.Values{"status": {"published"}, "page": {strconv.Itoa(page)}})
	})
	if err != nil {
		return nil, wrap(t.Name(), fmt.Errorf("list events: %w", err))
	}
	occurrences, err := fetchPages[ticketingOccurrence](ctx, t.env, func(page int) string {
		return t.endpoint("occurrences", url.Values{"page": {strconv.Itoa(page)}})
	})
	if err != nil {
		return nil, wrap(t.Name(), fmt.Errorf("list occurrences: %w", err))
	}

	byEvent := make(map[string][]ticketingOccurrence)
	for _, o := range occurrences {
		if o.Deleted {
			continue
		}
		byEvent[o.EventID] = append(byEvent[o.EventID], o)
	}

	cache := make(venueCache)
	log := t.env.logger(t.Name())
	now := t.env.now()
	var out []model.CanonicalEvent
	for _, e := range events {
		if !strings.EqualFold(e.Status, "published") {
			continue
		}
		venue := t.venue(ctx, cache, e.VenueID)
		for _, o := range byEvent[e.ID] {
			ev, err := t.mapOccurrence(e, o, venue, now)
			if err != nil {
				log.Debug("skip occurrence", "event", e.ID, "occurrence", o.ID, "error", err)
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func (t *Ticketing) mapOccurrence(e ticketingEvent, o ticketingOccurrence, venue *model.Venue, now time.Time) (model.CanonicalEvent, error) {
	loc := t.env.loc()
	start, _, err := dateparse.Parse(o.StartsAt, loc)
	if err != nil {
		return model.CanonicalEvent{}, err
	}
	var end time.Time
	if o.EndsAt != "" {
		if end, _, err = dateparse.Parse(o.EndsAt, loc); err != nil {
			end = time.Time{}
		}
	}

	ev := model.CanonicalEvent{
		ID:            eventID(t.Name(), e.ID, dateTimeKey(start)),
		Source:        t.Name(),
		SourceID:      e.ID + ":" + o.ID,
		Title:         textutil.DecodeHTMLEntities(e.Title),
		Description:   textutil.CleanDescription(e.Description, e.Title),
		StartDateTime: start,
		EndDateTime:   rollover(start, end),
		Venue:         venue,
		Categories:    e.Categories,
		URL:           e.URL,
		TicketURL:     e.TicketURL,
		ImageURL:      e.ImageURL,
		Section:       model.SectionArena,
	}
	if ev.URL == "" && t.cfg.PublicURL != "" {
		ev.URL = joinURL(t.cfg.PublicURL, e.ID)
	}
	if ev.TicketURL == "" {
		ev.TicketURL = ev.URL
	}
	if e.UpdatedAt != "" {
		if ts, _, err := dateparse.Parse(e.UpdatedAt, loc); err == nil {
			ev.LastModified = ts
		}
	}
	finalize(&ev, now)
	return ev, nil
}

// venue resolves the linked venue record, falling back to the configured
// default when the link is missing or the lookup fails.
func (t *Ticketing) venue(ctx context.Context, cache venueCache, id string) *model.Venue {
	if id == "" {
		return t.defaultVenue()
	}
	if v, ok := cache[id]; ok {
		return v
	}
	var raw ticketingVenue
	if err := t.env.Client.GetJSON(ctx, t.endpoint("venues/"+url.PathEscape(id), nil), &raw); err != nil || raw.Name == "" {
		t.env.logger(t.Name()).Debug("venue lookup failed", "venue_id", id, "error", err)
		v := t.defaultVenue()
		cache[id] = v
		return v
	}
	v := &model.Venue{
		Name:      raw.Name,
		Address:   raw.Address,
		City:      raw.City,
		State:     raw.State,
		Zip:       raw.Zip,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Phone:     raw.Phone,
	}
	cache[id] = v
	return v
}

func (t *Ticketing) defaultVenue() *model.Venue {
	return &model.Venue{Name: t.cfg.DefaultVenue, City: t.cfg.DefaultCity, State: t.cfg.DefaultState}
}

func (t *Ticketing) endpoint(path string, q url.Values) string {
	u := joinURL(t.cfg.BaseURL, path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// fetchPages walks a paginated collection until the last page.
func fetchPages[T any](ctx context.Context, env Env, pageURL func(page int) string) ([]T, error) {
	var all []T
	for page := 1; page <= ticketingMaxPages; page++ {
		var p ticketingPage[T]
		if err := env.Client.GetJSON(ctx, pageURL(page), &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if len(p.Data) == 0 || page >= p.Meta.TotalPages {
			break
		}
	}
	return all, nil
}
