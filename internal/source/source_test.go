package source

import (
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/eventsync/internal/fetch"
	"github.com/dukerupert/eventsync/internal/model"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testEnv(t *testing.T, now time.Time) Env {
	t.Helper()
	return Env{
		Client:   fetch.New(fetch.WithCourtesyDelay(0), fetch.WithRetries(0, time.Millisecond)),
		Location: now.Location(),
		Now:      func() time.Time { return now },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func assertValid(t *testing.T, events []model.CanonicalEvent) {
	t.Helper()
	ids := make(map[string]bool)
	for _, ev := range events {
		if !ev.EndDateTime.After(ev.StartDateTime) {
			t.Errorf("%s: end %v not after start %v", ev.ID, ev.EndDateTime, ev.StartDateTime)
		}
		if ids[ev.ID] {
			t.Errorf("duplicate id %s", ev.ID)
		}
		ids[ev.ID] = true
		if ev.LastModified.IsZero() {
			t.Errorf("%s: LastModified not set", ev.ID)
		}
	}
}

func TestEventID(t *testing.T) {
	tests := []struct {
		src   model.Source
		parts []string
		want  string
	}{
		{model.SourceBase, []string{"12345"}, "base-12345"},
		{model.SourceTheater, []string{"The Music Man!", "20251004"}, "theater-the-music-man-20251004"},
		{model.SourceICS, []string{"", "uid@example.com"}, "ics-uid-example-com"},
	}
	for _, tt := range tests {
		if got := eventID(tt.src, tt.parts...); got != tt.want {
			t.Errorf("eventID(%q, %q) = %q, want %q", tt.src, tt.parts, got, tt.want)
		}
	}
}

func TestRollover(t *testing.T) {
	loc := chicago(t)
	start := time.Date(2025, 10, 4, 23, 30, 0, 0, loc)

	sameDay := time.Date(2025, 10, 4, 1, 0, 0, 0, loc)
	if got := rollover(start, sameDay); !got.Equal(sameDay.AddDate(0, 0, 1)) {
		t.Errorf("rollover(same date) = %v, want next day", got)
	}

	later := time.Date(2025, 10, 5, 1, 0, 0, 0, loc)
	if got := rollover(start, later); !got.Equal(later) {
		t.Errorf("rollover(later) = %v, want unchanged", got)
	}

	if got := rollover(start, time.Time{}); !got.IsZero() {
		t.Errorf("rollover(zero) = %v, want zero", got)
	}
}
