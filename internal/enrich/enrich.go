// Package enrich fills missing images and descriptions from the OpenGraph
// and description meta tags of each event's own page.
package enrich

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

const DefaultWorkers = 4

// Getter fetches a page body. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Meta is what a page offers for enrichment.
type Meta struct {
	Image       string
	Description string
}

// Stats counts one enrichment pass.
type Stats struct {
	Candidates int `json:"candidates"`
	Pages      int `json:"pages"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
}

type Enricher struct {
	getter  Getter
	workers int
	logger  *slog.Logger
}

type Option func(*Enricher)

func WithWorkers(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

func New(getter Getter, opts ...Option) *Enricher {
	e := &Enricher{getter: getter, workers: DefaultWorkers, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich fetches the page of every event missing an image or description
// and fills only the empty fields. Each distinct URL is fetched once. Page
// failures are logged and counted; they never fail the pass.
func (e *Enricher) Enrich(ctx context.Context, events []model.CanonicalEvent) Stats {
	var stats Stats
	byURL := make(map[string][]int)
	var urls []string
	for i, ev := range events {
		if ev.URL == "" || (ev.ImageURL != "" && ev.Description != "") {
			continue
		}
		stats.Candidates++
		if _, ok := byURL[ev.URL]; !ok {
			urls = append(urls, ev.URL)
		}
		byURL[ev.URL] = append(byURL[ev.URL], i)
	}
	if len(urls) == 0 {
		return stats
	}

	var mu sync.Mutex
	metas := make(map[string]Meta, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, u := range urls {
		g.Go(func() error {
			body, err := e.getter.Get(gctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				e.logger.Debug("enrich fetch failed", "url", u, "error", err)
				return nil
			}
			metas[u] = ParseMeta(body, u)
			return nil
		})
	}
	g.Wait()
	stats.Pages = len(metas)

	for u, meta := range metas {
		for _, i := range byURL[u] {
			ev := &events[i]
			changed := false
			if ev.ImageURL == "" && meta.Image != "" {
				ev.ImageURL = meta.Image
				changed = true
			}
			if ev.Description == "" && meta.Description != "" {
				if d := textutil.CleanDescription(meta.Description, ev.Title); d != "" {
					ev.Description = d
					changed = true
				}
			}
			if changed {
				stats.Enriched++
			}
		}
	}

	e.logger.Info("enrichment complete",
		"candidates", stats.Candidates,
		"pages", stats.Pages,
		"enriched", stats.Enriched,
		"failed", stats.Failed)
	return stats
}

// ParseMeta reads og:image, og:description and description from the head of
// an HTML document. og:description wins over description. A relative image
// is resolved against pageURL.
func ParseMeta(body []byte, pageURL string) Meta {
	var m Meta
	var plainDesc string
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return finish(m, plainDesc, pageURL)
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return finish(m, plainDesc, pageURL)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return finish(m, plainDesc, pageURL)
			}
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var key, content string
			for {
				k, v, more := z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "property", "name":
					if key == "" {
						key = strings.ToLower(string(v))
					}
				case "content":
					content = strings.TrimSpace(string(v))
				}
				if !more {
					break
				}
			}
			switch key {
			case "og:image", "og:image:url", "og:image:secure_url":
				if m.Image == "" {
					m.Image = content
				}
			case "og:description":
				if m.Description == "" {
					m.Description = content
				}
			case "description":
				if plainDesc == "" {
					plainDesc = content
				}
			}
		}
	}
}

func finish(m Meta, plainDesc, pageURL string) Meta {
	if m.Description == "" {
		m.Description = plainDesc
	}
	m.Description = strings.Join(strings.Fields(m.Description), " ")
	if m.Image != "" {
		m.Image = resolve(pageURL, m.Image)
	}
	return m
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
