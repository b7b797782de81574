package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventsync/internal/category"
	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

// theaterListing matches the tail of one listing: "<Title> <Mon>. <Day>
// [<time>] <Venue>", with the "Buy Tickets" link text already split off.
var theaterListing = regexp.MustCompile(`(?is)(?:^|\n)([^\n]+?)\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:,?\s+(\d{4}))?(?:\s+(\d{1,2}(?::\d{2})?\s*(?:[ap]\.?m\.?)?))?\s+([^\n]+?)\s*$`)

var buyTickets = regexp.MustCompile(`(?i)buy tickets`)

// theaterNav lists words that mark a match as site chrome rather than a show.
var theaterNav = []string{
	"home", "about", "contact", "menu", "search", "login", "log in", "sign in",
	"cart", "donate", "subscribe", "newsletter", "gift card", "privacy",
	"season tickets", "box office", "volunteer", "calendar",
}

var theaterVenues = map[string]model.Venue{
	"main stage":     {Name: "Downtown Playhouse Main Stage", Address: "500 C Ave", City: "Lawton", State: "OK", Zip: "73501"},
	"studio theatre": {Name: "Downtown Playhouse Studio Theatre", Address: "500 C Ave", City: "Lawton", State: "OK", Zip: "73501"},
	"studio theater": {Name: "Downtown Playhouse Studio Theatre", Address: "500 C Ave", City: "Lawton", State: "OK", Zip: "73501"},
	"black box":      {Name: "Downtown Playhouse Black Box", Address: "502 C Ave", City: "Lawton", State: "OK", Zip: "73501"},
}

// Theater scrapes the community theater's season listing page.
type Theater struct {
	cfg config.FeedSource
	env Env
}

func NewTheater(cfg config.FeedSource, env Env) *Theater {
	return &Theater{cfg: cfg, env: env}
}

func (t *Theater) Name() model.Source { return model.SourceTheater }

func (t *Theater) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	body, err := t.env.Client.Get(ctx, t.cfg.URL)
	if err != nil {
		return nil, wrap(t.Name(), err)
	}
	return t.parse(string(body), t.env.now()), nil
}

func (t *Theater) parse(page string, now time.Time) []model.CanonicalEvent {
	text := strings.Join(textutil.TextLines(page), "\n")
	log := t.env.logger(t.Name())

	seen := make(map[string]bool)
	var out []model.CanonicalEvent
	for _, chunk := range buyTickets.Split(text, -1) {
		m := theaterListing.FindStringSubmatch(chunk)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		if isNavChrome(title) {
			log.Debug("skip nav match", "title", title)
			continue
		}
		month, ok := dateparse.MonthFromName(m[2])
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[3])

		var start time.Time
		if m[4] != "" {
			year, _ := strconv.Atoi(m[4])
			start = time.Date(year, month, day, dateparse.SentinelHour, 0, 0, 0, now.Location())
		} else {
			start = dateparse.InferYear(month, day, now)
		}
		if start.Day() != day {
			continue
		}
		if m[5] != "" {
			if h, mi, ok := dateparse.ParseClock(m[5], true); ok {
				start = dateparse.AtClock(start, h, mi)
			}
		}

		ev := model.CanonicalEvent{
			ID:            eventID(t.Name(), title, dateKey(start)),
			Source:        t.Name(),
			SourceID:      slug(title) + "-" + dateKey(start),
			Title:         title,
			StartDateTime: start,
			Venue:         theaterVenue(m[6]),
			Categories:    []string{category.Theater},
			URL:           t.cfg.URL,
			TicketURL:     t.cfg.URL,
			Section:       model.SectionDowntown,
		}
		if seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true
		finalize(&ev, now)
		out = append(out, ev)
	}
	return out
}

func isNavChrome(title string) bool {
	lower := " " + strings.ToLower(title) + " "
	for _, word := range theaterNav {
		if strings.Contains(lower, " "+word+" ") {
			return true
		}
	}
	return len(title) < 2
}

func theaterVenue(name string) *model.Venue {
	name = strings.TrimSpace(name)
	if v, ok := theaterVenues[strings.ToLower(name)]; ok {
		return &v
	}
	if name == "" {
		return nil
	}
	return &model.Venue{Name: name}
}
