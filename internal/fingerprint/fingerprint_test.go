package fingerprint

import (
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/eventsync/internal/model"
)

func sample() model.CanonicalEvent {
	start := time.Date(2025, 10, 20, 19, 0, 0, 0, time.UTC)
	return model.CanonicalEvent{
		ID:            "downtown-art-walk",
		Source:        model.SourceDowntown,
		SourceID:      "42",
		Title:         "Art Walk",
		Description:   "Galleries open late.",
		StartDateTime: start,
		EndDateTime:   start.Add(3 * time.Hour),
		Venue:         &model.Venue{Name: "Main Street", Address: "1 Main St"},
		Categories:    []string{"Arts & Culture", "Community"},
		URL:           "https://downtown.example.com/art-walk",
		LastModified:  time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Section:       model.SectionDowntown,
	}
}

func TestContentHashIgnoresBookkeeping(t *testing.T) {
	base := ContentHash(sample(), 0)

	tests := []struct {
		name   string
		mutate func(*model.CanonicalEvent)
	}{
		{"id", func(e *model.CanonicalEvent) { e.ID = "other" }},
		{"source id", func(e *model.CanonicalEvent) { e.SourceID = "43" }},
		{"last modified", func(e *model.CanonicalEvent) { e.LastModified = time.Now() }},
		{"section", func(e *model.CanonicalEvent) { e.Section = model.SectionArena }},
		{"venue address", func(e *model.CanonicalEvent) { e.Venue.Address = "2 Main St" }},
		{"contact phone", func(e *model.CanonicalEvent) { e.ContactPhone = "555-0100" }},
		{"same instant other zone", func(e *model.CanonicalEvent) {
			loc := time.FixedZone("CDT", -5*3600)
			e.StartDateTime = e.StartDateTime.In(loc)
			e.EndDateTime = e.EndDateTime.In(loc)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sample()
			tt.mutate(&ev)
			if got := ContentHash(ev, 0); got != base {
				t.Errorf("hash changed to %s, want %s", got, base)
			}
		})
	}
}

func TestContentHashTracksContent(t *testing.T) {
	base := ContentHash(sample(), 0)

	tests := []struct {
		name   string
		mutate func(*model.CanonicalEvent)
	}{
		{"title", func(e *model.CanonicalEvent) { e.Title = "Art Walk!" }},
		{"description", func(e *model.CanonicalEvent) { e.Description = "Galleries open early." }},
		{"start", func(e *model.CanonicalEvent) { e.StartDateTime = e.StartDateTime.Add(time.Minute) }},
		{"end", func(e *model.CanonicalEvent) { e.EndDateTime = e.EndDateTime.Add(time.Minute) }},
		{"venue name", func(e *model.CanonicalEvent) { e.Venue.Name = "Second Street" }},
		{"no venue", func(e *model.CanonicalEvent) { e.Venue = nil }},
		{"url", func(e *model.CanonicalEvent) { e.URL += "?x=1" }},
		{"ticket url", func(e *model.CanonicalEvent) { e.TicketURL = "https://tickets.example.com" }},
		{"image url", func(e *model.CanonicalEvent) { e.ImageURL = "https://img.example.com/a.jpg" }},
		{"category order", func(e *model.CanonicalEvent) { e.Categories = []string{"Community", "Arts & Culture"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sample()
			ev.Venue = &model.Venue{Name: "Main Street"}
			tt.mutate(&ev)
			if got := ContentHash(ev, 0); got == base {
				t.Errorf("hash unchanged after %s edit", tt.name)
			}
		})
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	a := sample()
	a.Title, a.Description = "Art", "Walk"
	b := sample()
	b.Title, b.Description = "ArtW", "alk"
	if ContentHash(a, 0) == ContentHash(b, 0) {
		t.Error("moving text across a field boundary kept the hash")
	}
}

func TestContentHashDescriptionPrefix(t *testing.T) {
	a := sample()
	a.Description = strings.Repeat("é", 10) + " tail one"
	b := sample()
	b.Description = strings.Repeat("é", 10) + " tail two"
	if ContentHash(a, 10) != ContentHash(b, 10) {
		t.Error("text beyond the prefix changed the hash")
	}
	if ContentHash(a, 20) == ContentHash(b, 20) {
		t.Error("text inside the prefix did not change the hash")
	}
}

func TestClassify(t *testing.T) {
	snap := map[string]string{"a": "111", "b": "222"}
	tests := []struct {
		id, hash string
		want     Class
	}{
		{"a", "111", Unchanged},
		{"b", "999", Update},
		{"c", "333", Insert},
	}
	for _, tt := range tests {
		if got := Classify(snap, tt.id, tt.hash); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.id, got, tt.want)
		}
	}
	if got := Classify(nil, "a", "111"); got != Insert {
		t.Errorf("Classify with nil snapshot = %s, want insert", got)
	}
}
