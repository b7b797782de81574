package source

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/model"
)

func allSources() config.Sources {
	return config.Sources{
		Ticketing: config.TicketingSource{Enabled: true, BaseURL: "https://tickets.example.com/api"},
		Downtown:  config.FeedSource{Enabled: true, URL: "https://downtown.example.com/api/events"},
		Base:      config.BaseSource{Enabled: true, URL: "https://base.example.com/rss"},
		Theater:   config.FeedSource{Enabled: true, URL: "https://playhouse.example.com"},
		Calendar:  config.CalendarSource{Enabled: true, URL: "https://city.example.com/calendar"},
		Sports:    config.SportsSource{Enabled: true, URL: "https://team.example.com/schedule"},
		ICS:       config.ICSSource{Enabled: true, URL: "https://example.com/events.ics"},
		Holidays:  config.StaticSource{Enabled: true},
		Concerts:  config.StaticSource{Enabled: true},
	}
}

func names(adapters []Adapter) []model.Source {
	out := make([]model.Source, len(adapters))
	for i, a := range adapters {
		out[i] = a.Name()
	}
	return out
}

func TestBuildOrder(t *testing.T) {
	adapters := Build(allSources(), testEnv(t, time.Now()))
	got := names(adapters)
	if len(got) != len(Order) {
		t.Fatalf("built %v, want %v", got, Order)
	}
	for i := range Order {
		if got[i] != Order[i] {
			t.Errorf("position %d = %s, want %s", i, got[i], Order[i])
		}
	}
}

func TestBuildSkipsDisabledAndUnconfigured(t *testing.T) {
	cfg := allSources()
	cfg.Base.Enabled = false
	cfg.Sports.URL = ""
	cfg.Concerts.Enabled = false

	got := names(Build(cfg, testEnv(t, time.Now())))
	for _, s := range got {
		switch s {
		case model.SourceBase, model.SourceSports, model.SourceConcerts:
			t.Errorf("%s should have been skipped", s)
		}
	}
	if len(got) != len(Order)-3 {
		t.Errorf("built %v", got)
	}
}

func TestSelect(t *testing.T) {
	cfg := allSources()
	cfg.Theater.Enabled = false
	adapters := Build(cfg, testEnv(t, time.Now()))

	all, err := Select(adapters, "")
	if err != nil || len(all) != len(adapters) {
		t.Errorf("Select(\"\") = %d adapters, %v", len(all), err)
	}

	one, err := Select(adapters, "holidays")
	if err != nil {
		t.Fatalf("Select(holidays): %v", err)
	}
	if len(one) != 1 || one[0].Name() != model.SourceHolidays {
		t.Errorf("Select(holidays) = %v", names(one))
	}

	if _, err := Select(adapters, "nope"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Select(nope) error = %v, want ErrUnknownSource", err)
	}

	_, err = Select(adapters, "theater")
	if err == nil || errors.Is(err, ErrUnknownSource) {
		t.Errorf("Select(theater) error = %v, want disabled error", err)
	}
}
