// Package aggregate runs every source adapter and merges their output into
// one upcoming, de-duplicated event list.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/source"
)

// Observer receives one report per adapter run.
type Observer interface {
	ObserveAdapter(src model.Source, events int, err error, elapsed time.Duration)
}

// SourceResult is the outcome of a single adapter within a run.
type SourceResult struct {
	Source  model.Source  `json:"source"`
	Events  int           `json:"events"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the merged output of one aggregation run.
type Result struct {
	Events  []model.CanonicalEvent `json:"events"`
	Sources []SourceResult         `json:"sources"`
	Fetched int                    `json:"fetched"`
	Dropped int                    `json:"duplicates_dropped"`
}

// BySource counts merged events per source.
func (r Result) BySource() map[model.Source]int {
	out := make(map[model.Source]int)
	for _, ev := range r.Events {
		out[ev.Source]++
	}
	return out
}

// Failed reports whether any adapter returned an error.
func (r Result) Failed() bool {
	for _, s := range r.Sources {
		if s.Error != "" {
			return true
		}
	}
	return false
}

type Engine struct {
	adapters []source.Adapter
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New returns an engine over adapters, which must already be in merge order.
func New(adapters []source.Adapter, opts ...Option) *Engine {
	e := &Engine{
		adapters: adapters,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run fetches from every adapter concurrently. An adapter error is logged and
// recorded in the result; it never aborts the other adapters.
func (e *Engine) Run(ctx context.Context) Result {
	batches := make([][]model.CanonicalEvent, len(e.adapters))
	results := make([]SourceResult, len(e.adapters))

	var g errgroup.Group
	for i, a := range e.adapters {
		g.Go(func() error {
			started := time.Now()
			events, err := a.Fetch(ctx)
			elapsed := time.Since(started)

			results[i] = SourceResult{Source: a.Name(), Events: len(events), Elapsed: elapsed}
			if err != nil {
				results[i].Error = err.Error()
				e.logger.Warn("adapter failed", "source", a.Name(), "error", err, "elapsed", elapsed)
			} else {
				e.logger.Info("adapter fetched", "source", a.Name(), "count", len(events), "elapsed", elapsed)
			}
			if e.observer != nil {
				e.observer.ObserveAdapter(a.Name(), len(events), err, elapsed)
			}
			batches[i] = events
			return nil
		})
	}
	g.Wait()

	merged, fetched, dropped := Merge(batches, e.now())
	e.logger.Info("aggregated events", "fetched", fetched, "kept", len(merged), "duplicates", dropped)
	return Result{Events: merged, Sources: results, Fetched: fetched, Dropped: dropped}
}

// Merge concatenates batches in order, keeps events that have not ended by
// now, sorts them by start and drops cross-source duplicates. It returns the
// merged list, the total input count and the number of duplicates dropped.
func Merge(batches [][]model.CanonicalEvent, now time.Time) ([]model.CanonicalEvent, int, int) {
	var all []model.CanonicalEvent
	fetched := 0
	for _, b := range batches {
		fetched += len(b)
		for _, ev := range b {
			if ev.EndDateTime.After(now) {
				all = append(all, ev)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartDateTime.Before(all[j].StartDateTime)
	})

	seen := make(map[string]bool, len(all))
	out := all[:0]
	dropped := 0
	for _, ev := range all {
		k := Key(ev)
		if seen[k] {
			dropped++
			continue
		}
		seen[k] = true
		out = append(out, ev)
	}
	return out, fetched, dropped
}

// Key is the cross-source duplicate key: lowercased title plus the start's
// calendar date in the event's own zone.
func Key(ev model.CanonicalEvent) string {
	return strings.ToLower(strings.TrimSpace(ev.Title)) + "|" + ev.StartDateTime.Format("2006-01-02")
}
