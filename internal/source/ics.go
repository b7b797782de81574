package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

// icsHorizon bounds recurrence expansion.
const icsHorizon = 120 * 24 * time.Hour

var icsUnescape = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

// ICS reads any iCalendar feed. Recurring events are expanded into one
// event per occurrence inside the horizon.
type ICS struct {
	cfg config.ICSSource
	env Env
}

func NewICS(cfg config.ICSSource, env Env) *ICS {
	return &ICS{cfg: cfg, env: env}
}

func (c *ICS) Name() model.Source { return model.SourceICS }

func (c *ICS) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	body, err := c.env.Client.Get(ctx, c.cfg.URL)
	if err != nil {
		return nil, wrap(c.Name(), err)
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, wrap(c.Name(), fmt.Errorf("parse calendar: %w", err))
	}

	log := c.env.logger(c.Name())
	now := c.env.now()
	var out []model.CanonicalEvent
	for _, ve := range cal.Events() {
		evs, err := c.mapEvent(ve, now)
		if err != nil {
			log.Debug("skip vevent", "uid", ve.Id(), "error", err)
			continue
		}
		out = append(out, evs...)
	}
	return out, nil
}

func (c *ICS) mapEvent(ve *ics.VEvent, now time.Time) ([]model.CanonicalEvent, error) {
	uid := ve.Id()
	if uid == "" {
		return nil, fmt.Errorf("missing UID")
	}
	start, allDay, err := c.propTime(ve.GetProperty(ics.ComponentPropertyDtStart))
	if err != nil {
		return nil, fmt.Errorf("dtstart: %w", err)
	}
	var end time.Time
	if !allDay {
		if e, _, err := c.propTime(ve.GetProperty(ics.ComponentPropertyDtEnd)); err == nil {
			end = rollover(start, e)
		}
	}

	base := model.CanonicalEvent{
		Source:     c.Name(),
		Title:      icsUnescape.Replace(propValue(ve, ics.ComponentPropertySummary)),
		URL:        propValue(ve, ics.ComponentPropertyUrl),
		Categories: splitCategories(propValue(ve, ics.ComponentPropertyCategories)),
		Section:    c.section(),
	}
	base.Description = textutil.CleanDescription(icsUnescape.Replace(propValue(ve, ics.ComponentPropertyDescription)), base.Title)
	if loc := icsUnescape.Replace(propValue(ve, ics.ComponentPropertyLocation)); loc != "" {
		base.Venue = &model.Venue{Name: strings.TrimSpace(strings.SplitN(loc, ",", 2)[0])}
		if parts := strings.SplitN(loc, ",", 2); len(parts) == 2 {
			base.Venue.Address = strings.TrimSpace(parts[1])
		}
	}
	if lm, _, err := c.propTime(ve.GetProperty(ics.ComponentPropertyLastModified)); err == nil {
		base.LastModified = lm
	}

	duration := end.Sub(start)
	if end.IsZero() {
		duration = 0
	}

	starts := []time.Time{start}
	rule := propValue(ve, ics.ComponentPropertyRrule)
	if rule != "" {
		r, err := rrule.StrToRRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rrule %q: %w", rule, err)
		}
		r.DTStart(start)
		set := &rrule.Set{}
		set.RRule(r)
		set.SetExDates(c.exdates(ve))
		starts = set.Between(now.Add(-24*time.Hour), now.Add(icsHorizon), true)
	}

	out := make([]model.CanonicalEvent, 0, len(starts))
	for _, s := range starts {
		ev := base
		ev.StartDateTime = s
		if duration > 0 {
			ev.EndDateTime = s.Add(duration)
		}
		// Occurrences of a recurring event always carry their start so the
		// id does not change as earlier occurrences fall out of the window.
		if rule != "" {
			ev.ID = eventID(c.Name(), uid, dateTimeKey(s))
			ev.SourceID = uid + "@" + dateTimeKey(s)
		} else {
			ev.ID = eventID(c.Name(), uid)
			ev.SourceID = uid
		}
		finalize(&ev, now)
		out = append(out, ev)
	}
	return out, nil
}

func (c *ICS) section() model.Section {
	if c.cfg.Section == "" {
		return model.SectionDowntown
	}
	return model.Section(c.cfg.Section)
}

// propTime reads a DATE or DATE-TIME property.
func (c *ICS) propTime(p *ics.IANAProperty) (time.Time, bool, error) {
	if p == nil || p.Value == "" {
		return time.Time{}, false, fmt.Errorf("missing value")
	}
	return c.parseTime(p.Value, p.ICalParameters)
}

// parseTime reads one DATE or DATE-TIME value. UTC values keep their instant,
// TZID values use that zone, floating values use the configured zone, and
// DATE values land on the noon sentinel.
func (c *ICS) parseTime(v string, params map[string][]string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	loc := c.env.loc()
	if tz, ok := params["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(c.env.loc()), false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t.In(c.env.loc()), false, err
	default:
		t, err := time.ParseInLocation("20060102", v, c.env.loc())
		return dateparse.AtSentinel(t), true, err
	}
}

// exdates collects every EXDATE instant. A property may list several
// comma-separated values sharing one TZID.
func (c *ICS) exdates(ve *ics.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(v) == "" {
				continue
			}
			t, _, err := c.parseTime(v, p.ICalParameters)
			if err != nil {
				c.env.logger(c.Name()).Debug("skip exdate", "uid", ve.Id(), "value", v, "error", err)
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func splitCategories(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(icsUnescape.Replace(v), ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
