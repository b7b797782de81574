package source

import (
	"fmt"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/model"
)

// Order is the fixed merge order. Cross-source dedup keeps the first
// occurrence, so an earlier source wins ties.
var Order = []model.Source{
	model.SourceTicketing,
	model.SourceDowntown,
	model.SourceBase,
	model.SourceTheater,
	model.SourceCalendar,
	model.SourceSports,
	model.SourceICS,
	model.SourceHolidays,
	model.SourceConcerts,
}

// Build returns the enabled adapters in merge order. Network adapters with
// no URL configured are left out.
func Build(cfg config.Sources, env Env) []Adapter {
	var out []Adapter
	if cfg.Ticketing.Enabled && cfg.Ticketing.BaseURL != "" {
		out = append(out, NewTicketing(cfg.Ticketing, env))
	}
	if cfg.Downtown.Enabled && cfg.Downtown.URL != "" {
		out = append(out, NewDowntown(cfg.Downtown, env))
	}
	if cfg.Base.Enabled && cfg.Base.URL != "" {
		out = append(out, NewBase(cfg.Base, env))
	}
	if cfg.Theater.Enabled && cfg.Theater.URL != "" {
		out = append(out, NewTheater(cfg.Theater, env))
	}
	if cfg.Calendar.Enabled && cfg.Calendar.URL != "" {
		out = append(out, NewCalendar(cfg.Calendar, env))
	}
	if cfg.Sports.Enabled && cfg.Sports.URL != "" {
		out = append(out, NewSports(cfg.Sports, env))
	}
	if cfg.ICS.Enabled && cfg.ICS.URL != "" {
		out = append(out, NewICS(cfg.ICS, env))
	}
	if cfg.Holidays.Enabled {
		out = append(out, NewHolidays(env))
	}
	if cfg.Concerts.Enabled {
		out = append(out, NewConcerts(env))
	}
	return out
}

// Select narrows adapters to the one named. An empty name keeps them all.
// Naming a source that does not exist, or one that is not enabled, is an
// error.
func Select(adapters []Adapter, name string) ([]Adapter, error) {
	if name == "" {
		return adapters, nil
	}
	known := false
	for _, s := range Order {
		if string(s) == name {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	for _, a := range adapters {
		if string(a.Name()) == name {
			return []Adapter{a}, nil
		}
	}
	return nil, fmt.Errorf("source %q is not enabled or has no url configured", name)
}
