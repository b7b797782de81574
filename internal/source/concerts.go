package source

import (
	"context"
	"time"

	"github.com/dukerupert/eventsync/internal/category"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
)

type concertDate struct {
	month     time.Month
	day       int
	performer string
}

// concertSeason is the installation's annual summer series. Dates repeat
// every year.
var concertSeason = []concertDate{
	{time.May, 30, "Army Field Band"},
	{time.June, 13, "Jazz Ambassadors"},
	{time.June, 27, "Post Brass Quintet"},
	{time.July, 3, "Patriotic Pops"},
	{time.July, 18, "Country Night"},
	{time.August, 1, "Rock the Fort"},
	{time.August, 15, "Season Finale"},
}

var concertVenue = model.Venue{Name: "Post Amphitheater"}

// Concerts emits the fixed annual concert season. No network access.
type Concerts struct {
	env    Env
	season []concertDate
}

func NewConcerts(env Env) *Concerts {
	return &Concerts{env: env, season: concertSeason}
}

func (c *Concerts) Name() model.Source { return model.SourceConcerts }

func (c *Concerts) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	now := c.env.now()
	out := make([]model.CanonicalEvent, 0, len(c.season))
	for _, d := range c.season {
		start := dateparse.AtClock(dateparse.InferYear(d.month, d.day, now), 19, 0)
		venue := concertVenue
		ev := model.CanonicalEvent{
			ID:            eventID(c.Name(), d.performer, dateKey(start)),
			Source:        c.Name(),
			SourceID:      slug(d.performer) + "-" + start.Format("2006"),
			Title:         "Summer Concert Series: " + d.performer,
			Description:   "Free outdoor concert. Bring a blanket or lawn chair.",
			StartDateTime: start,
			EndDateTime:   start.Add(2 * time.Hour),
			Venue:         &venue,
			Categories:    []string{category.LiveMusic, category.Military},
			Section:       model.SectionMilitary,
		}
		finalize(&ev, now)
		out = append(out, ev)
	}
	return out, nil
}
