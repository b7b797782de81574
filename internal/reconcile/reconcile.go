// Package reconcile diffs freshly aggregated events against persisted state
// and applies the minimal writes plus lifecycle transitions.
package reconcile

import (
	"log/slog"
	"time"

	"github.com/dukerupert/eventsync/internal/fingerprint"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/textutil"
)

const (
	DefaultArchiveGrace     = 24 * time.Hour
	DefaultStaleWindow      = 48 * time.Hour
	DefaultDescriptionLimit = 2000
)

// Store is the persistence the reconciler needs. *store.EventStore
// satisfies it.
type Store interface {
	Snapshot() (map[string]string, error)
	Upsert(u model.EventUpsert) error
	Touch(id string, seenAt time.Time) error
	ArchiveCandidates(endedBefore time.Time) ([]string, error)
	CancelCandidates(seenBefore, now time.Time) ([]string, error)
	SetStatus(id string, from, to model.Status, at time.Time) (bool, error)
}

// VenueResolver maps free-text venue names to directory ids.
type VenueResolver interface {
	Resolve(name string) string
}

type Options struct {
	DryRun           bool
	ArchiveGrace     time.Duration
	StaleWindow      time.Duration
	HashPrefix       int
	DescriptionLimit int
}

type Reconciler struct {
	store  Store
	venues VenueResolver
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New returns a reconciler. venues may be nil, in which case no venue ids
// are attached.
func New(store Store, venues VenueResolver, opts Options, options ...Option) *Reconciler {
	if opts.ArchiveGrace <= 0 {
		opts.ArchiveGrace = DefaultArchiveGrace
	}
	if opts.StaleWindow <= 0 {
		opts.StaleWindow = DefaultStaleWindow
	}
	if opts.HashPrefix <= 0 {
		opts.HashPrefix = fingerprint.DefaultDescriptionPrefix
	}
	if opts.DescriptionLimit <= 0 {
		opts.DescriptionLimit = DefaultDescriptionLimit
	}
	r := &Reconciler{
		store:  store,
		venues: venues,
		opts:   opts,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Step is one planned write for an event.
type Step struct {
	Class  fingerprint.Class
	Upsert model.EventUpsert
}

// Plan classifies every event against the stored snapshot. It performs no
// writes.
func (r *Reconciler) Plan(events []model.CanonicalEvent) ([]Step, model.SyncSummary) {
	now := r.now()
	summary := model.SyncSummary{
		Fetched:  len(events),
		BySource: make(map[model.Source]int),
		DryRun:   r.opts.DryRun,
	}

	snapshot, err := r.store.Snapshot()
	if err != nil {
		r.logger.Warn("snapshot unavailable, writing every event", "error", err)
		snapshot = nil
		summary.NoSnapshot = true
	}

	steps := make([]Step, 0, len(events))
	for _, ev := range events {
		ev.Description = textutil.Truncate(ev.Description, r.opts.DescriptionLimit)

		var venueID string
		if r.venues != nil && ev.VenueName() != "" {
			if venueID = r.venues.Resolve(ev.VenueName()); venueID != "" {
				summary.Resolved++
			}
		}

		hash := fingerprint.ContentHash(ev, r.opts.HashPrefix)
		steps = append(steps, Step{
			Class: fingerprint.Classify(snapshot, ev.ID, hash),
			Upsert: model.EventUpsert{
				Event:       ev,
				VenueID:     venueID,
				VenueName:   ev.VenueName(),
				ContentHash: hash,
				SeenAt:      now,
			},
		})
		summary.BySource[ev.Source]++
	}
	return steps, summary
}

// Sync plans and applies writes: a full upsert for inserts and updates, a
// last-seen touch for unchanged events. A failed statement is counted and the
// batch continues. In dry-run mode the counts are produced by the same code
// with the writes skipped.
func (r *Reconciler) Sync(events []model.CanonicalEvent) model.SyncSummary {
	steps, summary := r.Plan(events)

	for _, st := range steps {
		id := st.Upsert.Event.ID
		var err error
		switch st.Class {
		case fingerprint.Unchanged:
			err = r.write(func() error { return r.store.Touch(id, st.Upsert.SeenAt) })
		default:
			err = r.write(func() error { return r.store.Upsert(st.Upsert) })
		}
		if err != nil {
			summary.Errors++
			r.logger.Error("reconcile write failed", "id", id, "class", st.Class, "error", err)
			continue
		}
		switch st.Class {
		case fingerprint.Insert:
			summary.Inserted++
		case fingerprint.Update:
			summary.Updated++
		case fingerprint.Unchanged:
			summary.Unchanged++
		}
	}

	r.logger.Info("sync reconciled",
		"fetched", summary.Fetched,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"errors", summary.Errors,
		"dry_run", summary.DryRun)
	return summary
}

// Cleanup archives rows that ended more than ArchiveGrace ago and cancels
// non-manual rows not seen within StaleWindow whose end has not passed.
func (r *Reconciler) Cleanup() model.CleanupSummary {
	now := r.now()
	summary := model.CleanupSummary{DryRun: r.opts.DryRun}

	archive, err := r.store.ArchiveCandidates(now.Add(-r.opts.ArchiveGrace))
	if err != nil {
		summary.Errors++
		r.logger.Error("list archive candidates", "error", err)
	}
	summary.Archived, summary.Errors = r.transition(archive, model.StatusPast, now, summary.Errors)

	cancel, err := r.store.CancelCandidates(now.Add(-r.opts.StaleWindow), now)
	if err != nil {
		summary.Errors++
		r.logger.Error("list cancel candidates", "error", err)
	}
	summary.Cancelled, summary.Errors = r.transition(cancel, model.StatusCancelled, now, summary.Errors)

	r.logger.Info("cleanup reconciled",
		"archived", summary.Archived,
		"cancelled", summary.Cancelled,
		"errors", summary.Errors,
		"dry_run", summary.DryRun)
	return summary
}

func (r *Reconciler) transition(ids []string, to model.Status, now time.Time, errs int) (int, int) {
	moved := 0
	for _, id := range ids {
		if r.opts.DryRun {
			moved++
			continue
		}
		ok, err := r.store.SetStatus(id, model.StatusConfirmed, to, now)
		if err != nil {
			errs++
			r.logger.Error("status transition failed", "id", id, "to", to, "error", err)
			continue
		}
		if !ok {
			r.logger.Debug("status already changed", "id", id, "to", to)
			continue
		}
		moved++
	}
	return moved, errs
}

// write runs fn unless this is a dry run.
func (r *Reconciler) write(fn func() error) error {
	if r.opts.DryRun {
		return nil
	}
	return fn()
}
