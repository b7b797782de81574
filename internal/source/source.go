// Package source holds the upstream adapters. Each adapter fetches one
// upstream and maps its raw payload into model.CanonicalEvent; raw shapes
// never leave the adapter.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/eventsync/internal/category"
	"github.com/dukerupert/eventsync/internal/fetch"
	"github.com/dukerupert/eventsync/internal/model"
)

// ErrUnknownSource is returned when a caller asks for an adapter by a name
// that is not registered.
var ErrUnknownSource = errors.New("unknown source")

// Adapter fetches one upstream. A returned error means the whole adapter
// produced nothing; bad individual items are skipped instead.
type Adapter interface {
	Name() model.Source
	Fetch(ctx context.Context) ([]model.CanonicalEvent, error)
}

// Env carries the shared collaborators every adapter is built with.
type Env struct {
	Client   *fetch.Client
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now().In(e.loc())
	}
	return time.Now().In(e.loc())
}

func (e Env) loc() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e Env) logger(src model.Source) *slog.Logger {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "source", "source", string(src))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// eventID derives a stable id from the source and its native identifiers.
func eventID(src model.Source, parts ...string) string {
	out := []string{string(src)}
	for _, p := range parts {
		if s := slug(p); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "-")
}

func dateKey(t time.Time) string {
	return t.Format("20060102")
}

func dateTimeKey(t time.Time) string {
	return t.Format("200601021504")
}

// finalize applies the invariants shared by every adapter.
func finalize(ev *model.CanonicalEvent, now time.Time) {
	ev.Title = strings.TrimSpace(ev.Title)
	ev.EnsureEnd()
	ev.Categories = category.Normalize(ev.Categories)
	if len(ev.Categories) == 0 {
		ev.Categories = category.Infer(ev.Title + " " + ev.Description)
	}
	if ev.LastModified.IsZero() {
		ev.LastModified = now
	}
}

// rollover treats an end at or before the start on the same literal date as
// an overnight span.
func rollover(start, end time.Time) time.Time {
	if end.IsZero() || end.After(start) {
		return end
	}
	end = end.In(start.Location())
	if end.Year() == start.Year() && end.YearDay() == start.YearDay() {
		return end.AddDate(0, 0, 1)
	}
	return end
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func wrap(src model.Source, err error) error {
	return fmt.Errorf("%s: %w", src, err)
}
