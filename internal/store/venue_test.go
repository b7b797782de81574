package store

import (
	"testing"

	"github.com/dukerupert/eventsync/internal/model"
)

func TestVenueUpsertAndList(t *testing.T) {
	s := NewVenueStore(setupTestDB(t))

	lat, lon := 34.6036, -98.3959
	arena := model.VenueRecord{
		ID:        "civic-arena",
		Name:      "Civic Arena",
		Aliases:   []string{"The Arena", "Civic Center Arena"},
		City:      "Lawton",
		State:     "OK",
		Latitude:  &lat,
		Longitude: &lon,
	}
	if err := s.Upsert(arena); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(model.VenueRecord{ID: "blue-room", Name: "Blue Room"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Replacing the alias set drops the old aliases.
	arena.Aliases = []string{"The Arena"}
	if err := s.Upsert(arena); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	venues, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(venues) != 2 {
		t.Fatalf("got %d venues, want 2", len(venues))
	}
	got := venues[1]
	if got.ID != "civic-arena" {
		t.Fatalf("order = %s, %s", venues[0].ID, venues[1].ID)
	}
	if len(got.Aliases) != 1 || got.Aliases[0] != "The Arena" {
		t.Errorf("aliases = %q", got.Aliases)
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("latitude = %v", got.Latitude)
	}
	if venues[0].Latitude != nil {
		t.Errorf("blue room latitude = %v, want nil", *venues[0].Latitude)
	}
}

func TestVenueUpsertRequiresIDAndName(t *testing.T) {
	s := NewVenueStore(setupTestDB(t))
	if err := s.Upsert(model.VenueRecord{Name: "No ID"}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestVenueGetByID(t *testing.T) {
	s := NewVenueStore(setupTestDB(t))
	if err := s.Upsert(model.VenueRecord{ID: "blue-room", Name: "Blue Room", Address: "12 Main St"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	v, err := s.GetByID("blue-room")
	if err != nil || v == nil {
		t.Fatalf("get: %v %v", v, err)
	}
	if v.Address != "12 Main St" {
		t.Errorf("address = %q", v.Address)
	}
	if v, err := s.GetByID("missing"); err != nil || v != nil {
		t.Errorf("GetByID(missing) = %v, %v", v, err)
	}
}
