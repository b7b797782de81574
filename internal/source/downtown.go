package source

import (
	"context"
	"time"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/dateparse"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

type downtownFeed struct {
	Docs []downtownDoc `json:"docs"`
}

type downtownDoc struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Slug        string             `json:"slug"`
	Status      string             `json:"_status"`
	StartDate   string             `json:"startDate"`
	EndDate     string             `json:"endDate"`
	Description string             `json:"description"`
	Categories  []downtownCategory `json:"categories"`
	Location    *downtownLocation  `json:"location"`
	Image       *downtownImage     `json:"image"`
	Website     string             `json:"website"`
	TicketURL   string             `json:"ticketUrl"`
	Phone       string             `json:"phone"`
	UpdatedAt   string             `json:"updatedAt"`
}

type downtownCategory struct {
	Title string `json:"title"`
}

type downtownLocation struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

type downtownImage struct {
	URL string `json:"url"`
}

// Downtown reads the downtown association's CMS events collection.
type Downtown struct {
	cfg config.FeedSource
	env Env
}

func NewDowntown(cfg config.FeedSource, env Env) *Downtown {
	return &Downtown{cfg: cfg, env: env}
}

func (d *Downtown) Name() model.Source { return model.SourceDowntown }

func (d *Downtown) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	var feed downtownFeed
	if err := d.env.Client.GetJSON(ctx, d.cfg.URL, &feed); err != nil {
		return nil, wrap(d.Name(), err)
	}

	log := d.env.logger(d.Name())
	now := d.env.now()
	var out []model.CanonicalEvent
	for _, doc := range feed.Docs {
		if doc.Status == "draft" {
			continue
		}
		ev, err := d.mapDoc(doc, now)
		if err != nil {
			log.Debug("skip doc", "id", doc.ID, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (d *Downtown) mapDoc(doc downtownDoc, now time.Time) (model.CanonicalEvent, error) {
	loc := d.env.loc()
	start, _, err := dateparse.Parse(doc.StartDate, loc)
	if err != nil {
		return model.CanonicalEvent{}, err
	}
	var end time.Time
	if doc.EndDate != "" {
		if e, _, err := dateparse.Parse(doc.EndDate, loc); err == nil {
			end = rollover(start, e)
		}
	}

	ev := model.CanonicalEvent{
		ID:            eventID(d.Name(), doc.ID),
		Source:        d.Name(),
		SourceID:      doc.ID,
		Title:         textutil.DecodeHTMLEntities(doc.Title),
		Description:   textutil.CleanDescription(doc.Description, doc.Title),
		StartDateTime: start,
		EndDateTime:   end,
		URL:           doc.Website,
		TicketURL:     doc.TicketURL,
		ContactPhone:  doc.Phone,
		Section:       model.SectionDowntown,
	}
	for _, c := range doc.Categories {
		ev.Categories = append(ev.Categories, c.Title)
	}
	if doc.Location != nil && doc.Location.Name != "" {
		ev.Venue = &model.Venue{
			Name:    doc.Location.Name,
			Address: doc.Location.Address,
			City:    doc.Location.City,
			State:   doc.Location.State,
			Zip:     doc.Location.Zip,
		}
	}
	if doc.Image != nil {
		ev.ImageURL = doc.Image.URL
	}
	if doc.UpdatedAt != "" {
		if ts, _, err := dateparse.Parse(doc.UpdatedAt, loc); err == nil {
			ev.LastModified = ts
		}
	}
	finalize(&ev, now)
	return ev, nil
}
