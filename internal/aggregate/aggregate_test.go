package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/source"
)

type fakeAdapter struct {
	name   model.Source
	events []model.CanonicalEvent
	err    error
	delay  time.Duration
}

func (f fakeAdapter) Name() model.Source { return f.name }

func (f fakeAdapter) Fetch(ctx context.Context) ([]model.CanonicalEvent, error) {
	time.Sleep(f.delay)
	return f.events, f.err
}

type recorder struct {
	mu   sync.Mutex
	seen map[model.Source]error
}

func (r *recorder) ObserveAdapter(src model.Source, events int, err error, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[src] = err
}

var now = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func ev(src model.Source, id, title string, start time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		ID:            id,
		Source:        src,
		SourceID:      id,
		Title:         title,
		StartDateTime: start,
		EndDateTime:   start.Add(2 * time.Hour),
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunIsolatesFailures(t *testing.T) {
	day := now.Add(48 * time.Hour)
	adapters := []source.Adapter{
		fakeAdapter{name: model.SourceTicketing, events: []model.CanonicalEvent{ev(model.SourceTicketing, "t1", "Hockey", day)}},
		fakeAdapter{name: model.SourceDowntown, err: errors.New("upstream down")},
		fakeAdapter{name: model.SourceBase, events: []model.CanonicalEvent{ev(model.SourceBase, "b1", "Fall Fest", day.Add(time.Hour))}},
	}
	rec := &recorder{seen: make(map[model.Source]error)}
	res := New(adapters, WithLogger(quiet()), WithClock(func() time.Time { return now }), WithObserver(rec)).Run(context.Background())

	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if !res.Failed() {
		t.Error("Failed() = false, want true")
	}
	if res.Sources[1].Error == "" || res.Sources[1].Source != model.SourceDowntown {
		t.Errorf("downtown result = %+v", res.Sources[1])
	}
	if len(rec.seen) != 3 || rec.seen[model.SourceDowntown] == nil {
		t.Errorf("observer saw %v", rec.seen)
	}
	if got := res.BySource(); got[model.SourceTicketing] != 1 || got[model.SourceBase] != 1 {
		t.Errorf("BySource = %v", got)
	}
}

func TestRunMergeOrderIgnoresCompletionOrder(t *testing.T) {
	start := now.Add(72 * time.Hour)
	// The first adapter finishes last but still wins the duplicate.
	adapters := []source.Adapter{
		fakeAdapter{name: model.SourceTicketing, delay: 30 * time.Millisecond, events: []model.CanonicalEvent{ev(model.SourceTicketing, "t1", "Holiday Parade", start)}},
		fakeAdapter{name: model.SourceHolidays, events: []model.CanonicalEvent{ev(model.SourceHolidays, "h1", "holiday parade", start)}},
	}
	res := New(adapters, WithLogger(quiet()), WithClock(func() time.Time { return now })).Run(context.Background())
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if res.Events[0].Source != model.SourceTicketing {
		t.Errorf("kept %s, want ticketing", res.Events[0].Source)
	}
	if res.Dropped != 1 || res.Fetched != 2 {
		t.Errorf("fetched/dropped = %d/%d, want 2/1", res.Fetched, res.Dropped)
	}
}

func TestMergeFiltersAndSorts(t *testing.T) {
	batches := [][]model.CanonicalEvent{
		{
			ev(model.SourceDowntown, "late", "Late Show", now.Add(5*24*time.Hour)),
			ev(model.SourceDowntown, "past", "Yesterday", now.Add(-26*time.Hour)),
		},
		{
			ev(model.SourceCalendar, "early", "Morning Market", now.Add(24*time.Hour)),
			// Started an hour ago, still running.
			ev(model.SourceCalendar, "running", "Art Walk", now.Add(-time.Hour)),
		},
	}
	got, fetched, dropped := Merge(batches, now)
	want := []string{"running", "early", "late"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if fetched != 4 || dropped != 0 {
		t.Errorf("fetched/dropped = %d/%d", fetched, dropped)
	}
}

func TestMergeEndingExactlyNowIsDropped(t *testing.T) {
	e := ev(model.SourceDowntown, "x", "Done", now.Add(-2*time.Hour))
	got, _, _ := Merge([][]model.CanonicalEvent{{e}}, now)
	if len(got) != 0 {
		t.Errorf("event ending at run time kept")
	}
}

// The duplicate key trades precision for recall. These cases pin the
// behavior so a stricter key is a deliberate change.
func TestMergeDedupTradeoffs(t *testing.T) {
	day := time.Date(2025, 10, 20, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b model.CanonicalEvent
		kept int
	}{
		{
			name: "same title same day different venues over-merges",
			a:    withVenue(ev(model.SourceDowntown, "d1", "Trivia Night", day), "Blue Room"),
			b:    withVenue(ev(model.SourceCalendar, "c1", "Trivia Night", day.Add(2*time.Hour)), "Library"),
			kept: 1,
		},
		{
			name: "case and padding differences still merge",
			a:    ev(model.SourceDowntown, "d1", "Art Walk", day),
			b:    ev(model.SourceCalendar, "c1", "  ART WALK ", day),
			kept: 1,
		},
		{
			name: "slightly different titles under-merge",
			a:    ev(model.SourceDowntown, "d1", "Fall Fest", day),
			b:    ev(model.SourceBase, "b1", "Fall Fest 2025", day),
			kept: 2,
		},
		{
			name: "same title on different days are distinct",
			a:    ev(model.SourceDowntown, "d1", "Farmers Market", day),
			b:    ev(model.SourceDowntown, "d2", "Farmers Market", day.Add(7*24*time.Hour)),
			kept: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := Merge([][]model.CanonicalEvent{{tt.a}, {tt.b}}, now)
			if len(got) != tt.kept {
				t.Fatalf("kept %d, want %d", len(got), tt.kept)
			}
			if got[0].ID != tt.a.ID {
				t.Errorf("first kept = %s, want %s", got[0].ID, tt.a.ID)
			}
		})
	}
}

func withVenue(e model.CanonicalEvent, name string) model.CanonicalEvent {
	e.Venue = &model.Venue{Name: name}
	return e
}
