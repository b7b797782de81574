package model

import "time"

// Status is the persisted lifecycle state of an event row.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPast      Status = "past"
	StatusCancelled Status = "cancelled"
)

// StoredEvent is an events row as read back from the store.
type StoredEvent struct {
	CanonicalEvent
	VenueID     string    `json:"venue_id,omitempty"`
	Status      Status    `json:"status"`
	ContentHash string    `json:"content_hash"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventUpsert is a full-column write request keyed by (Source, SourceID).
// It carries values only; statement text lives in the store.
type EventUpsert struct {
	Event       CanonicalEvent
	VenueID     string
	VenueName   string
	ContentHash string
	SeenAt      time.Time
}
