package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/publish"
	"github.com/dukerupert/eventsync/internal/source"
	"github.com/dukerupert/eventsync/internal/store"
	ws "github.com/dukerupert/eventsync/internal/websocket"
)

var now = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	name   model.Source
	events []model.CanonicalEvent
	err    error
}

func (f fakeAdapter) Name() model.Source { return f.name }

func (f fakeAdapter) Fetch(context.Context) ([]model.CanonicalEvent, error) {
	return f.events, f.err
}

type fakePublisher struct {
	calls  int
	events int
}

func (f *fakePublisher) Publish(_ context.Context, events []model.CanonicalEvent, _ time.Time) (publish.Result, error) {
	f.calls++
	f.events = len(events)
	return publish.Result{Key: "events.json", Count: len(events)}, nil
}

func event(src model.Source, id, title, venue string, start time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		ID:            string(src) + "-" + id,
		Source:        src,
		SourceID:      id,
		Title:         title,
		StartDateTime: start,
		EndDateTime:   start.Add(2 * time.Hour),
		Venue:         &model.Venue{Name: venue},
		Section:       model.SectionDowntown,
	}
}

type fixture struct {
	db        *database.DB
	events    *store.EventStore
	runs      *store.RunStore
	publisher *fakePublisher
	hub       *ws.Hub
	pipeline  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	venues := store.NewVenueStore(db)
	if err := venues.Upsert(model.VenueRecord{ID: "civic", Name: "Civic Center"}); err != nil {
		t.Fatalf("seed venue: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		db:        db,
		events:    store.NewEventStore(db),
		runs:      store.NewRunStore(db),
		publisher: &fakePublisher{},
		hub:       ws.NewHub(logger),
	}
	f.pipeline = New(Deps{
		Events:    f.events,
		Runs:      f.runs,
		Venues:    venues,
		Publisher: f.publisher,
		Metrics:   metrics.New(),
		Hub:       f.hub,
		Logger:    logger,
		Now:       func() time.Time { return now },
	})
	return f
}

func TestRunSync(t *testing.T) {
	f := newFixture(t)
	adapters := []source.Adapter{
		fakeAdapter{name: model.SourceDowntown, events: []model.CanonicalEvent{
			event(model.SourceDowntown, "1", "Symphony", "Civic Center", now.Add(48*time.Hour)),
			event(model.SourceDowntown, "2", "Old Show", "Civic Center", now.Add(-48*time.Hour)),
		}},
		fakeAdapter{name: model.SourceTheater, err: errors.New("connection refused")},
		fakeAdapter{name: model.SourceICS, events: []model.CanonicalEvent{
			event(model.SourceICS, "a", "symphony ", "Civic Center", now.Add(49*time.Hour)),
			event(model.SourceICS, "b", "Gallery Walk", "Main St", now.Add(72*time.Hour)),
		}},
	}

	report := f.pipeline.Run(context.Background(), adapters, Options{Cleanup: true})

	if len(report.Sources) != 3 || report.Sources[1].Error == "" {
		t.Errorf("sources = %+v", report.Sources)
	}
	if len(report.Events) != 2 || report.Dropped != 1 {
		t.Errorf("events = %d dropped = %d, want 2 and 1", len(report.Events), report.Dropped)
	}
	s := report.Run.Sync
	if s == nil || s.Inserted != 2 || s.Resolved != 1 {
		t.Fatalf("sync = %+v", s)
	}
	if report.Run.Cleanup == nil {
		t.Error("cleanup did not run")
	}
	if f.publisher.calls != 1 || f.publisher.events != 2 {
		t.Errorf("publisher = %+v", f.publisher)
	}

	runs, err := f.runs.ListRecent(5)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != report.Run.ID || runs[0].Sync.Inserted != 2 {
		t.Errorf("recorded runs = %+v", runs)
	}

	stored, err := f.events.GetByID("downtown-1")
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v %v", stored, err)
	}
	if stored.VenueID != "civic" {
		t.Errorf("venue id = %q, want civic", stored.VenueID)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)
	adapters := []source.Adapter{
		fakeAdapter{name: model.SourceDowntown, events: []model.CanonicalEvent{
			event(model.SourceDowntown, "1", "Symphony", "Civic Center", now.Add(48*time.Hour)),
		}},
	}

	report := f.pipeline.Run(context.Background(), adapters, Options{DryRun: true, Cleanup: true})
	if report.Run.Sync == nil || report.Run.Sync.Inserted != 1 || !report.Run.DryRun {
		t.Errorf("run = %+v", report.Run)
	}
	if f.publisher.calls != 0 {
		t.Error("dry run published the feed")
	}
	if runs, _ := f.runs.ListRecent(5); len(runs) != 0 {
		t.Errorf("dry run recorded %d runs", len(runs))
	}
	if ev, _ := f.events.GetByID("downtown-1"); ev != nil {
		t.Error("dry run wrote an event")
	}
}

func TestRunSkipsCleanupWhenEveryAdapterFails(t *testing.T) {
	f := newFixture(t)
	seen := now.Add(-72 * time.Hour)
	err := f.events.Upsert(model.EventUpsert{
		Event:       event(model.SourceDowntown, "1", "Symphony", "Civic Center", now.Add(48*time.Hour)),
		ContentHash: "h",
		SeenAt:      seen,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	adapters := []source.Adapter{fakeAdapter{name: model.SourceDowntown, err: errors.New("503")}}
	report := f.pipeline.Run(context.Background(), adapters, Options{Cleanup: true})

	if report.Run.Cleanup != nil {
		t.Errorf("cleanup ran: %+v", report.Run.Cleanup)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a warning")
	}
	if f.publisher.calls != 0 {
		t.Error("published an empty feed after a total outage")
	}
	ev, _ := f.events.GetByID("downtown-1")
	if ev == nil || ev.Status != model.StatusConfirmed {
		t.Errorf("event = %+v, want still confirmed", ev)
	}
}

func TestRunCleanupOnly(t *testing.T) {
	f := newFixture(t)
	err := f.events.Upsert(model.EventUpsert{
		Event:       event(model.SourceDowntown, "1", "Last Week", "Civic Center", now.Add(-7*24*time.Hour)),
		ContentHash: "h",
		SeenAt:      now.Add(-7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := f.pipeline.Run(context.Background(), nil, Options{CleanupOnly: true})
	if report.Run.Mode != model.RunModeCleanup || report.Run.Sync != nil {
		t.Errorf("run = %+v", report.Run)
	}
	if report.Run.Cleanup == nil || report.Run.Cleanup.Archived != 1 {
		t.Errorf("cleanup = %+v, want 1 archived", report.Run.Cleanup)
	}
	if f.publisher.calls != 0 {
		t.Error("cleanup-only run published the feed")
	}
}

func TestPreviewLeavesStoreAlone(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(Deps{Logger: logger, Now: func() time.Time { return now }})
	adapters := []source.Adapter{
		fakeAdapter{name: model.SourceDowntown, events: []model.CanonicalEvent{
			event(model.SourceDowntown, "1", "Symphony", "Civic Center", now.Add(48*time.Hour)),
			event(model.SourceDowntown, "2", "Gallery Walk", "Main St", now.Add(24*time.Hour)),
		}},
	}

	report := p.Preview(context.Background(), adapters, false)

	if report.Run.Mode != model.RunModePreview || !report.Run.DryRun {
		t.Errorf("run = %+v", report.Run)
	}
	if report.Run.Sync != nil || report.Run.Cleanup != nil {
		t.Errorf("preview reconciled: %+v", report.Run)
	}
	if len(report.Events) != 2 || report.Events[0].Title != "Gallery Walk" {
		t.Errorf("events = %+v", report.Events)
	}
}
