package source

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/dukerupert/eventsync/internal/category"
	"github.com/dukerupert/eventsync/internal/model"
)

type holidayRule struct {
	name        string
	rrule       string
	hour        int
	minute      int
	duration    time.Duration
	categories  []string
	description string
	// derive moves a computed occurrence to the date actually observed.
	derive func(time.Time) time.Time
}

var holidayRules = []holidayRule{
	{
		name:        "Martin Luther King Jr. Day Celebration",
		rrule:       "FREQ=YEARLY;BYMONTH=1;BYDAY=+3MO",
		hour:        11,
		duration:    2 * time.Hour,
		categories:  []string{category.Holidays, category.Community},
		description: "Community celebration honoring Dr. Martin Luther King Jr.",
	},
	{
		name:        "Memorial Day Ceremony",
		rrule:       "FREQ=YEARLY;BYMONTH=5;BYDAY=-1MO",
		hour:        10,
		duration:    time.Hour,
		categories:  []string{category.Holidays, category.Military},
		description: "Wreath laying and remembrance ceremony.",
	},
	{
		name:        "Independence Day Fireworks",
		rrule:       "FREQ=YEARLY;BYMONTH=7;BYMONTHDAY=4",
		hour:        21,
		minute:      30,
		duration:    time.Hour,
		categories:  []string{category.Holidays, category.Family},
		description: "Fireworks over downtown.",
	},
	{
		name:        "Veterans Day Ceremony",
		rrule:       "FREQ=YEARLY;BYMONTH=11;BYMONTHDAY=11",
		hour:        11,
		duration:    time.Hour,
		categories:  []string{category.Holidays, category.Military},
		description: "Ceremony honoring those who served.",
	},
	{
		name:        "Holiday Parade",
		rrule:       "FREQ=YEARLY;BYMONTH=11;BYDAY=+4TH",
		hour:        18,
		duration:    2 * time.Hour,
		categories:  []string{category.Holidays, category.Family},
		description: "Lighted parade through downtown the Saturday before Thanksgiving.",
		derive:      saturdayBefore,
	},
	{
		name:        "Downtown Lights On",
		rrule:       "FREQ=YEARLY;BYMONTH=11;BYDAY=-1FR",
		hour:        17,
		minute:      30,
		duration:    2 * time.Hour,
		categories:  []string{category.Holidays, category.Community},
		description: "Holiday lighting kickoff with carolers and vendors.",
	},
}

// Holidays computes recurring downtown holiday events. No network access.
type Holidays struct {
	env   Env
	rules []holidayRule
}

func NewHolidays(env Env) *Holidays {
	return &Holidays{env: env, rules: holidayRules}
}

func (h *Holidays) Name() model.Source { return model.SourceHolidays }

func (h *Holidays) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	now := h.env.now()
	out := make([]model.CanonicalEvent, 0, len(h.rules))
	for _, rule := range h.rules {
		start, err := nextOccurrence(rule, now)
		if err != nil {
			return nil, wrap(h.Name(), err)
		}
		ev := model.CanonicalEvent{
			ID:            eventID(h.Name(), rule.name, dateKey(start)),
			Source:        h.Name(),
			SourceID:      slug(rule.name) + "-" + start.Format("2006"),
			Title:         rule.name,
			Description:   rule.description,
			StartDateTime: start,
			EndDateTime:   start.Add(rule.duration),
			Venue:         &model.Venue{Name: "Downtown"},
			Categories:    rule.categories,
			Section:       model.SectionDowntown,
		}
		finalize(&ev, now)
		out = append(out, ev)
	}
	return out, nil
}

// nextOccurrence returns the first observed date on or after today, rolling
// into next year once this year's date has passed.
func nextOccurrence(rule holidayRule, now time.Time) (time.Time, error) {
	r, err := rrule.StrToRRule(rule.rrule)
	if err != nil {
		return time.Time{}, fmt.Errorf("rule %q: %w", rule.name, err)
	}
	loc := now.Location()
	r.DTStart(time.Date(now.Year()-1, time.January, 1, rule.hour, rule.minute, 0, 0, loc))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	t := r.After(today, true)
	for i := 0; i < 3 && !t.IsZero(); i++ {
		observed := t
		if rule.derive != nil {
			observed = rule.derive(t)
		}
		if !observed.Before(today) {
			return observed, nil
		}
		t = r.After(t, false)
	}
	return time.Time{}, fmt.Errorf("rule %q: no upcoming occurrence", rule.name)
}

// saturdayBefore returns the Saturday strictly before t, keeping t's clock.
func saturdayBefore(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for d.Weekday() != time.Saturday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
