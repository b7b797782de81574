package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dukerupert/eventsync/internal/category"
	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

// matchup splits "Home Vs Opponent" and "Home At Opponent" titles.
var matchup = regexp.MustCompile(`(?i)^(.*?)\s+(vs\.?|v\.|at|@)\s+(.+)$`)

// sportDurations sizes a game when the schedule gives no end time.
var sportDurations = []struct {
	sport string
	d     time.Duration
}{
	{"baseball", 3 * time.Hour},
	{"softball", 2 * time.Hour},
	{"football", 3*time.Hour + 30*time.Minute},
	{"basketball", 2 * time.Hour},
	{"hockey", 2*time.Hour + 30*time.Minute},
	{"soccer", 2 * time.Hour},
	{"volleyball", 2 * time.Hour},
	{"wrestling", 2*time.Hour + 30*time.Minute},
}

type sportsEvent struct {
	Type        json.RawMessage `json:"@type"`
	ID          string          `json:"@id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	URL         string          `json:"url"`
	Sport       string          `json:"sport"`
	EventStatus string          `json:"eventStatus"`
	Image       json.RawMessage `json:"image"`
	Location    json.RawMessage `json:"location"`
	HomeTeam    json.RawMessage `json:"homeTeam"`
	AwayTeam    json.RawMessage `json:"awayTeam"`
}

type ldPlace struct {
	Name    string          `json:"name"`
	Address json.RawMessage `json:"address"`
}

type ldAddress struct {
	StreetAddress   string `json:"streetAddress"`
	AddressLocality string `json:"addressLocality"`
	AddressRegion   string `json:"addressRegion"`
	PostalCode      string `json:"postalCode"`
}

// Sports reads a team schedule page's SportsEvent JSON-LD and keeps home games.
type Sports struct {
	cfg config.SportsSource
	env Env
}

func NewSports(cfg config.SportsSource, env Env) *Sports {
	return &Sports{cfg: cfg, env: env}
}

func (s *Sports) Name() model.Source { return model.SourceSports }

func (s *Sports) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	body, err := s.env.Client.Get(ctx, s.cfg.URL)
	if err != nil {
		return nil, wrap(s.Name(), err)
	}
	games, err := extractSportsEvents(body)
	if err != nil {
		return nil, wrap(s.Name(), err)
	}

	log := s.env.logger(s.Name())
	now := s.env.now()
	var out []model.CanonicalEvent
	for _, g := range games {
		ev, ok, err := s.mapGame(g, now)
		if err != nil {
			log.Debug("skip game", "name", g.Name, "error", err)
			continue
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// extractSportsEvents collects SportsEvent objects from every ld+json block,
// whether the block holds one object, an array, or an @graph.
func extractSportsEvents(page []byte) ([]sportsEvent, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse schedule page: %w", err)
	}
	var out []sportsEvent
	scripts := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "script" && strings.EqualFold(attr(n, "type"), "application/ld+json")
	})
	for _, sc := range scripts {
		if sc.FirstChild == nil {
			continue
		}
		for _, raw := range ldObjects(json.RawMessage(sc.FirstChild.Data)) {
			var ev sportsEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			if ldHasType(ev.Type, "SportsEvent") {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func ldObjects(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil
		}
		var out []json.RawMessage
		for _, a := range arr {
			out = append(out, ldObjects(a)...)
		}
		return out
	}
	var graph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(raw, &graph); err == nil && len(graph.Graph) > 0 {
		return graph.Graph
	}
	return []json.RawMessage{raw}
}

func ldHasType(raw json.RawMessage, want string) bool {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one == want
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t == want {
				return true
			}
		}
	}
	return false
}

// ldName reads a value that may be a plain string, an object with a name or
// url, or an array of either.
func ldName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != "" {
			return obj.Name
		}
		return obj.URL
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return ldName(arr[0])
	}
	return ""
}

func ldVenue(raw json.RawMessage) *model.Venue {
	if len(raw) == 0 {
		return nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == "" {
			return nil
		}
		return &model.Venue{Name: name}
	}
	var place ldPlace
	if err := json.Unmarshal(raw, &place); err != nil {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
			return ldVenue(arr[0])
		}
		return nil
	}
	v := &model.Venue{Name: place.Name}
	var addr ldAddress
	if err := json.Unmarshal(place.Address, &addr); err == nil {
		v.Address = addr.StreetAddress
		v.City = addr.AddressLocality
		v.State = addr.AddressRegion
		v.Zip = addr.PostalCode
	} else {
		json.Unmarshal(place.Address, &v.Address)
	}
	if v.Name == "" && v.Address == "" {
		return nil
	}
	return v
}

// mapGame returns ok=false for games that are filtered out (away or
// cancelled) rather than malformed.
func (s *Sports) mapGame(g sportsEvent, now time.Time) (model.CanonicalEvent, bool, error) {
	if strings.Contains(g.EventStatus, "EventCancelled") {
		return model.CanonicalEvent{}, false, nil
	}
	venue := ldVenue(g.Location)
	if !s.isHome(venue) {
		return model.CanonicalEvent{}, false, nil
	}

	loc := s.env.loc()
	start, _, err := dateparse.Parse(g.StartDate, loc)
	if err != nil {
		return model.CanonicalEvent{}, false, err
	}
	var end time.Time
	if g.EndDate != "" {
		if e, _, err := dateparse.Parse(g.EndDate, loc); err == nil {
			end = rollover(start, e)
		}
	}
	if end.IsZero() {
		end = start.Add(gameDuration(g))
	}

	name := textutil.DecodeHTMLEntities(g.Name)
	team, opponent := s.teams(name, g)
	title := name
	if opponent != "" {
		title = team + " vs. " + opponent
	}

	native := g.ID
	if native == "" {
		native = slug(orDefault(opponent, name)) + "@" + dateTimeKey(start)
	}
	ev := model.CanonicalEvent{
		ID:            eventID(s.Name(), orDefault(opponent, name), dateKey(start)),
		Source:        s.Name(),
		SourceID:      native,
		Title:         title,
		Description:   textutil.CleanDescription(g.Description, name),
		StartDateTime: start,
		EndDateTime:   end,
		Venue:         venue,
		Categories:    []string{category.Sports},
		URL:           g.URL,
		TicketURL:     g.URL,
		ImageURL:      ldName(g.Image),
		Section:       model.SectionArena,
	}
	finalize(&ev, now)
	return ev, true, nil
}

// isHome matches the configured home venue against the location's name and
// address. With no home match configured every game is kept.
func (s *Sports) isHome(v *model.Venue) bool {
	if s.cfg.HomeMatch == "" {
		return true
	}
	if v == nil {
		return false
	}
	hay := strings.ToLower(v.Name + " " + v.Address + " " + v.City)
	return strings.Contains(hay, strings.ToLower(s.cfg.HomeMatch))
}

// teams derives the home team and opponent from the title pattern, falling
// back to the structured team fields.
func (s *Sports) teams(name string, g sportsEvent) (team, opponent string) {
	team = s.cfg.TeamName
	if m := matchup.FindStringSubmatch(name); m != nil {
		if team == "" {
			team = strings.TrimSpace(m[1])
		}
		return team, strings.TrimSpace(m[3])
	}
	if team == "" {
		team = ldName(g.HomeTeam)
	}
	opponent = ldName(g.AwayTeam)
	if team == "" {
		return "", ""
	}
	return team, opponent
}

func gameDuration(g sportsEvent) time.Duration {
	hay := strings.ToLower(g.Sport + " " + g.Name + " " + g.URL)
	for _, sd := range sportDurations {
		if strings.Contains(hay, sd.sport) {
			return sd.d
		}
	}
	return model.DefaultDuration
}
