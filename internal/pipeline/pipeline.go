// Package pipeline runs one end-to-end sync: aggregate, optionally enrich,
// reconcile, clean up, publish, and record the run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/eventsync/internal/aggregate"
	"github.com/dukerupert/eventsync/internal/enrich"
	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/publish"
	"github.com/dukerupert/eventsync/internal/reconcile"
	"github.com/dukerupert/eventsync/internal/source"
	"github.com/dukerupert/eventsync/internal/store"
	"github.com/dukerupert/eventsync/internal/venue"
	ws "github.com/dukerupert/eventsync/internal/websocket"
)

// Publisher uploads the aggregated feed. *publish.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, events []model.CanonicalEvent, generatedAt time.Time) (publish.Result, error)
}

// VenueLister supplies the venue directory. *store.VenueStore satisfies it.
type VenueLister interface {
	List() ([]model.VenueRecord, error)
}

// Deps are the collaborators of a Pipeline. Events and Runs are required;
// the rest may be nil.
type Deps struct {
	Events    reconcile.Store
	Runs      *store.RunStore
	Venues    VenueLister
	Enricher  *enrich.Enricher
	Publisher Publisher
	Metrics   *metrics.Metrics
	Hub       *ws.Hub
	Logger    *slog.Logger
	Now       func() time.Time
}

// Options select what a single Run does.
type Options struct {
	DryRun      bool
	Cleanup     bool
	CleanupOnly bool
	Enhanced    bool
	Reconcile   reconcile.Options
}

// Report is everything a run produced.
type Report struct {
	Run      model.Run                `json:"run"`
	Sources  []aggregate.SourceResult `json:"sources,omitempty"`
	Dropped  int                      `json:"duplicates_dropped"`
	Enrich   *enrich.Stats            `json:"enrich,omitempty"`
	Publish  *publish.Result          `json:"publish,omitempty"`
	Events   []model.CanonicalEvent   `json:"events,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
}

type Pipeline struct {
	deps Deps
}

func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}
}

// Run executes one pass over adapters. Individual adapter, statement, and
// publish failures are reported in the Report rather than returned.
func (p *Pipeline) Run(ctx context.Context, adapters []source.Adapter, opts Options) Report {
	d := p.deps
	started := d.Now()
	mode := model.RunModeSync
	if opts.CleanupOnly {
		mode = model.RunModeCleanup
	}
	var report Report
	report.Run = model.Run{Mode: mode, DryRun: opts.DryRun, StartedAt: started}

	if d.Hub != nil {
		d.Hub.Broadcast(ws.NewMessage(mode, ws.ActionStarted, "", map[string]any{"dry_run": opts.DryRun}))
	}

	recOpts := opts.Reconcile
	recOpts.DryRun = opts.DryRun
	reconciler := reconcile.New(d.Events, p.resolver(), recOpts,
		reconcile.WithLogger(d.Logger.With("component", "reconcile")),
		reconcile.WithClock(d.Now))

	allFailed := false
	if !opts.CleanupOnly {
		allFailed = p.collect(ctx, adapters, opts.Enhanced, &report)

		summary := reconciler.Sync(report.Events)
		report.Run.Sync = &summary
		if d.Metrics != nil {
			d.Metrics.ObserveSync(summary)
		}
	}

	if opts.Cleanup || opts.CleanupOnly {
		if allFailed {
			d.Logger.Warn("every adapter failed, skipping cleanup")
			report.Warnings = append(report.Warnings, "cleanup skipped: every adapter failed")
		} else {
			summary := reconciler.Cleanup()
			report.Run.Cleanup = &summary
			if d.Metrics != nil {
				d.Metrics.ObserveCleanup(summary)
			}
		}
	}

	if d.Publisher != nil && !opts.DryRun && !opts.CleanupOnly && !allFailed {
		res, err := d.Publisher.Publish(ctx, report.Events, started)
		if err != nil {
			d.Logger.Error("publish feed", "error", err)
			report.Warnings = append(report.Warnings, "publish failed: "+err.Error())
		} else {
			report.Publish = &res
		}
	}

	report.Run.FinishedAt = d.Now()
	if !opts.DryRun && d.Runs != nil {
		if err := d.Runs.Create(&report.Run); err != nil {
			d.Logger.Error("record run", "error", err)
			report.Warnings = append(report.Warnings, "run not recorded: "+err.Error())
		}
	}
	if d.Metrics != nil {
		d.Metrics.ObserveRun(report.Run)
	}
	if d.Hub != nil {
		d.Hub.Broadcast(ws.RunFinished(report.Run))
	}

	d.Logger.Info("run complete",
		"mode", mode,
		"dry_run", opts.DryRun,
		"elapsed", report.Run.FinishedAt.Sub(started))
	return report
}

// Preview aggregates, and enriches when enhanced is set, without touching
// the store. Nothing is published or recorded.
func (p *Pipeline) Preview(ctx context.Context, adapters []source.Adapter, enhanced bool) Report {
	started := p.deps.Now()
	report := Report{Run: model.Run{Mode: model.RunModePreview, DryRun: true, StartedAt: started}}
	p.collect(ctx, adapters, enhanced, &report)
	report.Run.FinishedAt = p.deps.Now()
	p.deps.Logger.Info("preview complete",
		"events", len(report.Events),
		"elapsed", report.Run.FinishedAt.Sub(started))
	return report
}

// collect fills report with the aggregated events and reports whether every
// adapter failed.
func (p *Pipeline) collect(ctx context.Context, adapters []source.Adapter, enhanced bool, report *Report) bool {
	d := p.deps
	aggOpts := []aggregate.Option{
		aggregate.WithLogger(d.Logger.With("component", "aggregate")),
		aggregate.WithClock(d.Now),
	}
	if d.Metrics != nil {
		aggOpts = append(aggOpts, aggregate.WithObserver(d.Metrics))
	}
	res := aggregate.New(adapters, aggOpts...).Run(ctx)
	report.Sources = res.Sources
	report.Dropped = res.Dropped
	report.Events = res.Events

	if enhanced && d.Enricher != nil {
		stats := d.Enricher.Enrich(ctx, res.Events)
		report.Enrich = &stats
	}
	return len(adapters) > 0 && failedCount(res) == len(adapters)
}

// resolver loads the venue directory for this run. Without one, events are
// stored with no venue id.
func (p *Pipeline) resolver() reconcile.VenueResolver {
	if p.deps.Venues == nil {
		return nil
	}
	records, err := p.deps.Venues.List()
	if err != nil {
		p.deps.Logger.Warn("venue directory unavailable", "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return venue.NewResolver(records)
}

func failedCount(res aggregate.Result) int {
	n := 0
	for _, s := range res.Sources {
		if s.Error != "" {
			n++
		}
	}
	return n
}
