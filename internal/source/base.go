package source

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

var (
	rssItem      = regexp.MustCompile(`(?is)<item\b[^>]*>(.*?)</item>`)
	rssEnclosure = regexp.MustCompile(`(?i)<enclosure\b[^>]*\burl=["']([^"']+)["']`)
	rssTags      = map[string]*regexp.Regexp{}

	// detailScript finds a script variable assigned an object literal.
	detailScript = regexp.MustCompile(`(?s)(?:var|let|const)\s+\w+\s*=\s*(\{.*?\})\s*;`)
	detailField  = regexp.MustCompile(`(?s)["']?(startDate|endDate|startTime|endTime|location|address|image|phone)["']?\s*:\s*["']((?:[^"'\\]|\\.)*)["']`)

	clockPart = `\d{1,2}(?::\d{2})?\s*(?:[ap]\.?m\.?)`
	timeRange = regexp.MustCompile(`(?i)(?:^|[^\d/:])(\d{1,2}(?::\d{2})?\s*(?:[ap]\.?m\.?)?)\s*(?:-|–|to|until)\s*(` + clockPart + `)`)
	timeOne   = regexp.MustCompile(`(?i)(?:^|[^\d/:])(` + clockPart + `)`)
)

func init() {
	for _, tag := range []string{"title", "link", "description", "guid", "pubDate", "category", "ev:startdate", "ev:enddate", "ev:location"} {
		rssTags[tag] = regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(tag) + `(?:\s[^>]*)?>\s*(?:<!\[CDATA\[(.*?)\]\]>|(.*?))\s*</` + regexp.QuoteMeta(tag) + `>`)
	}
}

// rssTag returns every value of tag in an item, CDATA-wrapped or plain.
func rssTag(item, tag string) []string {
	var out []string
	for _, m := range rssTags[tag].FindAllStringSubmatch(item, -1) {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func rssFirst(item, tag string) string {
	if vs := rssTag(item, tag); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

type baseItem struct {
	Title       string
	Link        string
	Description string
	GUID        string
	PubDate     string
	Categories  []string
	Image       string
	StartDate   string
	EndDate     string
	Location    string
}

type baseDetail struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Location  string `json:"location"`
	Address   string `json:"address"`
	Image     string `json:"image"`
	Phone     string `json:"phone"`
}

// Base reads the installation's events RSS feed and, optionally, each
// item's detail page.
type Base struct {
	cfg config.BaseSource
	env Env
}

func NewBase(cfg config.BaseSource, env Env) *Base {
	return &Base{cfg: cfg, env: env}
}

func (b *Base) Name() model.Source { return model.SourceBase }

func (b *Base) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	body, err := b.env.Client.Get(ctx, b.cfg.URL)
	if err != nil {
		return nil, wrap(b.Name(), err)
	}
	items := parseRSS(string(body))

	details := make([]*baseDetail, len(items))
	if b.cfg.FetchDetail {
		details = b.fetchDetails(ctx, items)
	}

	log := b.env.logger(b.Name())
	now := b.env.now()
	var out []model.CanonicalEvent
	for i, item := range items {
		ev, err := b.mapItem(item, details[i], now)
		if err != nil {
			log.Debug("skip item", "title", item.Title, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseRSS(feed string) []baseItem {
	var items []baseItem
	for _, m := range rssItem.FindAllStringSubmatch(feed, -1) {
		raw := m[1]
		item := baseItem{
			Title:       textutil.DecodeHTMLEntities(rssFirst(raw, "title")),
			Link:        textutil.DecodeHTMLEntities(rssFirst(raw, "link")),
			Description: rssFirst(raw, "description"),
			GUID:        rssFirst(raw, "guid"),
			PubDate:     rssFirst(raw, "pubDate"),
			Categories:  rssTag(raw, "category"),
			StartDate:   rssFirst(raw, "ev:startdate"),
			EndDate:     rssFirst(raw, "ev:enddate"),
			Location:    textutil.DecodeHTMLEntities(rssFirst(raw, "ev:location")),
		}
		if enc := rssEnclosure.FindStringSubmatch(raw); enc != nil {
			item.Image = enc[1]
		}
		if item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// fetchDetails loads detail pages with at most DetailBatch in flight.
// A failed page leaves its slot nil.
func (b *Base) fetchDetails(ctx context.Context, items []baseItem) []*baseDetail {
	details := make([]*baseDetail, len(items))
	limit := b.cfg.DetailBatch
	if limit <= 0 {
		limit = 5
	}
	log := b.env.logger(b.Name())

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		if item.Link == "" {
			continue
		}
		g.Go(func() error {
			body, err := b.env.Client.Get(ctx, item.Link)
			if err != nil {
				log.Debug("detail fetch failed", "url", item.Link, "error", err)
				return nil
			}
			details[i] = parseDetail(string(body))
			return nil
		})
	}
	g.Wait()
	return details
}

// parseDetail extracts the event object a detail page assigns to a script
// variable. Strict JSON is tried first; object literals that are not valid
// JSON fall back to per-field extraction.
func parseDetail(page string) *baseDetail {
	for _, m := range detailScript.FindAllStringSubmatch(page, -1) {
		blob := m[1]
		if !strings.Contains(blob, "startDate") {
			continue
		}
		var d baseDetail
		if err := json.Unmarshal([]byte(blob), &d); err == nil {
			return &d
		}
		d = baseDetail{}
		for _, f := range detailField.FindAllStringSubmatch(blob, -1) {
			v := strings.ReplaceAll(f[2], `\/`, `/`)
			switch f[1] {
			case "startDate":
				d.StartDate = v
			case "endDate":
				d.EndDate = v
			case "startTime":
				d.StartTime = v
			case "endTime":
				d.EndTime = v
			case "location":
				d.Location = v
			case "address":
				d.Address = v
			case "image":
				d.Image = v
			case "phone":
				d.Phone = v
			}
		}
		if d.StartDate != "" {
			return &d
		}
	}
	return nil
}

func (b *Base) mapItem(item baseItem, detail *baseDetail, now time.Time) (model.CanonicalEvent, error) {
	plain := textutil.StripHTML(textutil.DecodeHTMLEntities(item.Description))
	start, end, err := b.schedule(item, detail, plain)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	native := item.GUID
	if native == "" {
		native = item.Link
	}
	if native == "" {
		native = item.Title + " " + dateKey(start)
	}

	ev := model.CanonicalEvent{
		ID:            eventID(b.Name(), native),
		Source:        b.Name(),
		SourceID:      native,
		Title:         item.Title,
		Description:   textutil.CleanDescription(item.Description, item.Title),
		StartDateTime: start,
		EndDateTime:   end,
		Categories:    item.Categories,
		URL:           item.Link,
		ImageURL:      item.Image,
		Section:       model.SectionMilitary,
	}
	location := item.Location
	if detail != nil {
		if detail.Location != "" {
			location = detail.Location
		}
		if detail.Image != "" {
			ev.ImageURL = detail.Image
		}
		ev.ContactPhone = detail.Phone
	}
	if location != "" {
		ev.Venue = &model.Venue{Name: location}
		if detail != nil {
			ev.Venue.Address = detail.Address
		}
	}
	if item.PubDate != "" {
		if ts, _, err := dateparse.Parse(item.PubDate, b.env.loc()); err == nil {
			ev.LastModified = ts
		}
	}
	finalize(&ev, now)
	return ev, nil
}

// schedule derives start and end from, in order: the detail page variable,
// the item's structured fields, then date and time tokens in the text.
func (b *Base) schedule(item baseItem, detail *baseDetail, text string) (time.Time, time.Time, error) {
	loc := b.env.loc()

	if detail != nil && detail.StartDate != "" {
		if start, ok := parseWithClock(detail.StartDate, detail.StartTime, loc); ok {
			end, _ := parseWithClock(orDefault(detail.EndDate, detail.StartDate), detail.EndTime, loc)
			if detail.EndDate == "" && detail.EndTime == "" {
				end = time.Time{}
			}
			return start, rollover(start, end), nil
		}
	}

	if item.StartDate != "" {
		if start, _, err := dateparse.Parse(item.StartDate, loc); err == nil {
			var end time.Time
			if item.EndDate != "" {
				end, _, _ = dateparse.Parse(item.EndDate, loc)
			}
			return start, rollover(start, end), nil
		}
	}

	dates := dateparse.SlashDates(text, loc)
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, dateparse.ErrNoDate
	}
	start := dates[0]
	last := dates[len(dates)-1]
	var end time.Time
	if last.After(start) {
		end = last
	}

	if m := timeRange.FindStringSubmatch(text); m != nil {
		eh, em, ok := dateparse.ParseClock(m[2], false)
		sh, sm, ok2 := parseRangeStart(m[1], m[2])
		if ok && ok2 {
			start = dateparse.AtClock(start, sh, sm)
			if end.IsZero() {
				end = dateparse.EndOnSameDate(start, eh, em)
			} else {
				end = dateparse.AtClock(end, eh, em)
			}
		}
	} else if m := timeOne.FindStringSubmatch(text); m != nil {
		if h, mi, ok := dateparse.ParseClock(m[1], false); ok {
			start = dateparse.AtClock(start, h, mi)
		}
	}
	return start, end, nil
}

// parseRangeStart reads the first clock of a range such as "7-10 p.m.",
// borrowing the meridiem from the end clock when the start has none.
func parseRangeStart(startClock, endClock string) (int, int, bool) {
	if h, m, ok := dateparse.ParseClock(startClock, false); ok && hasMeridiem(startClock) {
		return h, m, true
	}
	eh, _, ok := dateparse.ParseClock(endClock, false)
	if !ok {
		return 0, 0, false
	}
	h, m, ok := dateparse.ParseClock(startClock, eh >= 12)
	if !ok {
		return 0, 0, false
	}
	if h >= 12 && h > eh {
		h -= 12
	}
	return h, m, true
}

func hasMeridiem(s string) bool {
	s = strings.ToLower(s)
	return strings.ContainsAny(s, "ap")
}

// parseWithClock parses a date and, when given, an explicit clock string.
func parseWithClock(date, clock string, loc *time.Location) (time.Time, bool) {
	t, _, err := dateparse.Parse(date, loc)
	if err != nil {
		return time.Time{}, false
	}
	if clock != "" {
		if h, m, ok := dateparse.ParseClock(clock, false); ok {
			t = dateparse.AtClock(t, h, m)
		}
	}
	return t, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
