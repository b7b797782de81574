package model

import "time"

// Source identifies the upstream an event was fetched from.
type Source string

const (
	SourceTicketing Source = "ticketing"
	SourceDowntown  Source = "downtown"
	SourceBase      Source = "base"
	SourceTheater   Source = "theater"
	SourceCalendar  Source = "calendar"
	SourceSports    Source = "sports"
	SourceICS       Source = "ics"
	SourceHolidays  Source = "holidays"
	SourceConcerts  Source = "concerts"

	// SourceManual marks curated rows with no upstream. They are never
	// cancelled for going unseen.
	SourceManual Source = "manual"
)

// Section is the coarse partition used for filtering and grouping.
type Section string

const (
	SectionDowntown Section = "downtown"
	SectionMilitary Section = "military"
	SectionArena    Section = "arena"
)

// DefaultDuration is synthesized when a source only reports a start time.
const DefaultDuration = 2 * time.Hour

type Venue struct {
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Phone     string   `json:"phone,omitempty"`
}

// CanonicalEvent is the source-agnostic shape every adapter maps into.
type CanonicalEvent struct {
	ID            string    `json:"id"`
	Source        Source    `json:"source"`
	SourceID      string    `json:"source_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartDateTime time.Time `json:"start_date_time"`
	EndDateTime   time.Time `json:"end_date_time"`
	Venue         *Venue    `json:"venue,omitempty"`
	Categories    []string  `json:"categories"`
	URL           string    `json:"url"`
	TicketURL     string    `json:"ticket_url,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	ContactPhone  string    `json:"contact_phone,omitempty"`
	LastModified  time.Time `json:"last_modified"`
	Section       Section   `json:"section"`
}

// VenueName returns the venue's display name or "" when no venue is attached.
func (e CanonicalEvent) VenueName() string {
	if e.Venue == nil {
		return ""
	}
	return e.Venue.Name
}

// EnsureEnd enforces EndDateTime > StartDateTime, synthesizing the default
// duration when the end is missing or not after the start.
func (e *CanonicalEvent) EnsureEnd() {
	if !e.EndDateTime.After(e.StartDateTime) {
		e.EndDateTime = e.StartDateTime.Add(DefaultDuration)
	}
}
