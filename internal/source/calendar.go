package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

// calendarWorkers bounds concurrent week requests; the fetch client still
// spaces requests to the host.
const calendarWorkers = 2

type calendarItem struct {
	ID          string
	Title       string
	Href        string
	Start       string
	End         string
	Location    string
	Description string
	Categories  []string
	Image       string
}

// Calendar scrapes the city's community calendar, which only renders one
// week per page, across a rolling window of weeks.
type Calendar struct {
	cfg config.CalendarSource
	env Env
}

func NewCalendar(cfg config.CalendarSource, env Env) *Calendar {
	return &Calendar{cfg: cfg, env: env}
}

func (c *Calendar) Name() model.Source { return model.SourceCalendar }

func (c *Calendar) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	now := c.env.now()
	weeks := c.cfg.WeeksAhead
	if weeks <= 0 {
		weeks = 1
	}
	log := c.env.logger(c.Name())

	pages := make([][]calendarItem, weeks)
	errs := make([]error, weeks)
	first := weekStart(now)

	var g errgroup.Group
	g.SetLimit(calendarWorkers)
	for w := 0; w < weeks; w++ {
		g.Go(func() error {
			u, err := c.weekURL(first.AddDate(0, 0, 7*w))
			if err != nil {
				errs[w] = err
				return nil
			}
			body, err := c.env.Client.Get(ctx, u)
			if err != nil {
				errs[w] = err
				log.Warn("week fetch failed", "url", u, "error", err)
				return nil
			}
			items, err := parseCalendarPage(body)
			if err != nil {
				errs[w] = err
				return nil
			}
			pages[w] = items
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == weeks {
		return nil, wrap(c.Name(), fmt.Errorf("all %d week pages failed: %w", weeks, errors.Join(errs...)))
	}

	seen := make(map[string]bool)
	var out []model.CanonicalEvent
	for _, items := range pages {
		for _, item := range items {
			ev, err := c.mapItem(item, now)
			if err != nil {
				log.Debug("skip item", "title", item.Title, "error", err)
				continue
			}
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *Calendar) weekURL(week time.Time) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse calendar url: %w", err)
	}
	q := u.Query()
	q.Set("week", week.Format("2006-01-02"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// weekStart returns midnight of the Monday on or before t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

func parseCalendarPage(body []byte) ([]calendarItem, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar page: %w", err)
	}
	var items []calendarItem
	for _, n := range findAll(doc, byClass("event")) {
		item := calendarItem{
			ID:          attr(n, "data-event-id"),
			Title:       nodeText(findFirst(n, byClass("event-title"))),
			Location:    nodeText(findFirst(n, byClass("event-location"))),
			Description: nodeText(findFirst(n, byClass("event-description"))),
		}
		if a := findFirst(n, byTag("a")); a != nil {
			item.Href = attr(a, "href")
		}
		if t := findFirst(n, byClass("event-start")); t != nil {
			item.Start = attr(t, "datetime")
			if item.Start == "" {
				item.Start = nodeText(t)
			}
		}
		if t := findFirst(n, byClass("event-end")); t != nil {
			item.End = attr(t, "datetime")
			if item.End == "" {
				item.End = nodeText(t)
			}
		}
		for _, cat := range findAll(n, byClass("event-category")) {
			item.Categories = append(item.Categories, nodeText(cat))
		}
		if img := findFirst(n, byTag("img")); img != nil {
			item.Image = attr(img, "src")
		}
		if item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Calendar) mapItem(item calendarItem, now time.Time) (model.CanonicalEvent, error) {
	loc := c.env.loc()
	start, _, err := dateparse.Parse(item.Start, loc)
	if err != nil {
		return model.CanonicalEvent{}, err
	}
	var end time.Time
	if item.End != "" {
		if e, _, err := dateparse.Parse(item.End, loc); err == nil {
			end = rollover(start, e)
		} else if h, m, ok := dateparse.ParseClock(item.End, false); ok {
			end = dateparse.EndOnSameDate(start, h, m)
		}
	}

	// Recurring entries share a data id, so the occurrence time is part of
	// the identity.
	native := item.ID
	if native == "" {
		native = slug(item.Title)
	}
	native += "@" + dateTimeKey(start)
	ev := model.CanonicalEvent{
		ID:            eventID(c.Name(), native),
		Source:        c.Name(),
		SourceID:      native,
		Title:         item.Title,
		Description:   textutil.CleanDescription(item.Description, item.Title),
		StartDateTime: start,
		EndDateTime:   end,
		Categories:    item.Categories,
		URL:           resolveURL(c.cfg.URL, item.Href),
		ImageURL:      resolveURL(c.cfg.URL, item.Image),
		Section:       model.SectionDowntown,
	}
	if item.Location != "" {
		ev.Venue = &model.Venue{Name: item.Location}
	}
	finalize(&ev, now)
	return ev, nil
}
