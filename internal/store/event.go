package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/model"
)

const eventColumns = `id, source, source_id, title, description, start_date_time, end_date_time,
	venue_id, venue_name, venue_address, venue_city, venue_state, venue_zip, categories,
	url, ticket_url, image_url, contact_phone, section, status, content_hash,
	last_modified, last_seen_at, created_at, updated_at`

type EventStore struct {
	db *database.DB
}

func NewEventStore(db *database.DB) *EventStore {
	return &EventStore{db: db}
}

// Snapshot returns id -> content_hash for every row that is not cancelled.
func (s *EventStore) Snapshot() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, content_hash FROM events WHERE status != 'cancelled'`)
	if err != nil {
		return nil, fmt.Errorf("load event snapshot: %w", err)
	}
	defer rows.Close()

	snap := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan event snapshot: %w", err)
		}
		snap[id] = hash
	}
	return snap, rows.Err()
}

// Upsert writes every column of u keyed by (source, source_id). An existing
// row takes the new id and returns to confirmed.
func (s *EventStore) Upsert(u model.EventUpsert) error {
	ev := u.Event
	cats, err := encodeCategories(ev.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	var v model.Venue
	if ev.Venue != nil {
		v = *ev.Venue
	}
	venueName := u.VenueName
	if venueName == "" {
		venueName = v.Name
	}
	seen := utc(u.SeenAt)

	_, err = s.db.Exec(
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'confirmed', ?, ?, ?, ?, ?)
		 ON CONFLICT(source, source_id) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			description = excluded.description,
			start_date_time = excluded.start_date_time,
			end_date_time = excluded.end_date_time,
			venue_id = excluded.venue_id,
			venue_name = excluded.venue_name,
			venue_address = excluded.venue_address,
			venue_city = excluded.venue_city,
			venue_state = excluded.venue_state,
			venue_zip = excluded.venue_zip,
			categories = excluded.categories,
			url = excluded.url,
			ticket_url = excluded.ticket_url,
			image_url = excluded.image_url,
			contact_phone = excluded.contact_phone,
			section = excluded.section,
			status = 'confirmed',
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		ev.ID, string(ev.Source), ev.SourceID, ev.Title, ev.Description, utc(ev.StartDateTime), utc(ev.EndDateTime),
		nullString(u.VenueID), venueName, v.Address, v.City, v.State, v.Zip, cats,
		ev.URL, ev.TicketURL, ev.ImageURL, ev.ContactPhone, string(ev.Section),
		u.ContentHash, nullTime(ev.LastModified), seen, seen, seen,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// Touch refreshes last_seen_at without rewriting content.
func (s *EventStore) Touch(id string, seenAt time.Time) error {
	_, err := s.db.Exec(`UPDATE events SET last_seen_at = ? WHERE id = ?`, utc(seenAt), id)
	if err != nil {
		return fmt.Errorf("touch event %s: %w", id, err)
	}
	return nil
}

// ArchiveCandidates lists confirmed events that ended before endedBefore.
func (s *EventStore) ArchiveCandidates(endedBefore time.Time) ([]string, error) {
	return s.ids(
		`SELECT id FROM events WHERE status = 'confirmed' AND end_date_time < ? ORDER BY id`,
		utc(endedBefore),
	)
}

// CancelCandidates lists confirmed, non-manual events not seen since
// seenBefore whose end is still after now.
func (s *EventStore) CancelCandidates(seenBefore, now time.Time) ([]string, error) {
	return s.ids(
		`SELECT id FROM events
		 WHERE status = 'confirmed' AND source != ? AND last_seen_at < ? AND end_date_time > ?
		 ORDER BY id`,
		string(model.SourceManual), utc(seenBefore), utc(now),
	)
}

// SetStatus moves a row from one status to another. It reports false when
// the row was not in the from status.
func (s *EventStore) SetStatus(id string, from, to model.Status, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), utc(at), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("set event %s status %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set event %s status rows affected: %w", id, err)
	}
	return n > 0, nil
}

func (s *EventStore) GetByID(id string) (*model.StoredEvent, error) {
	ev, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// EventFilter narrows ListUpcoming. Zero values match everything.
type EventFilter struct {
	Section  model.Section
	Category string
	Source   model.Source
	From     time.Time
	To       time.Time
	Limit    int
}

// ListUpcoming returns confirmed events that have not ended by f.From,
// ordered by start.
func (s *EventStore) ListUpcoming(f EventFilter) ([]model.StoredEvent, error) {
	if f.From.IsZero() {
		f.From = time.Now()
	}
	where := []string{"status = 'confirmed'", "end_date_time > ?"}
	args := []any{utc(f.From)}
	if !f.To.IsZero() {
		where = append(where, "start_date_time < ?")
		args = append(args, utc(f.To))
	}
	if f.Section != "" {
		where = append(where, "section = ?")
		args = append(args, string(f.Section))
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Category != "" {
		// categories is a JSON array of strings.
		where = append(where, "categories LIKE ?")
		args = append(args, `%"`+f.Category+`"%`)
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY start_date_time, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()

	var events []model.StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CountByStatus returns the number of rows in each lifecycle status.
func (s *EventStore) CountByStatus() (map[model.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *EventStore) ids(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.StoredEvent, error) {
	var (
		ev                                model.StoredEvent
		source, section, status, cats     string
		venueID                           sql.NullString
		venueName, addr, city, state, zip string
		lastModified                      sql.NullTime
	)
	err := scanner.Scan(
		&ev.ID, &source, &ev.SourceID, &ev.Title, &ev.Description, &ev.StartDateTime, &ev.EndDateTime,
		&venueID, &venueName, &addr, &city, &state, &zip, &cats,
		&ev.URL, &ev.TicketURL, &ev.ImageURL, &ev.ContactPhone, &section, &status, &ev.ContentHash,
		&lastModified, &ev.LastSeenAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Source = model.Source(source)
	ev.Section = model.Section(section)
	ev.Status = model.Status(status)
	ev.VenueID = venueID.String
	if lastModified.Valid {
		ev.LastModified = lastModified.Time
	}
	if venueName != "" || addr != "" {
		ev.Venue = &model.Venue{Name: venueName, Address: addr, City: city, State: state, Zip: zip}
	}
	if err := json.Unmarshal([]byte(cats), &ev.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &ev, nil
}

// utc normalizes stored instants so SQLite's text timestamps compare in
// instant order.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeCategories writes a JSON array without HTML escaping so labels such
// as "Arts & Culture" stay matchable with LIKE.
func encodeCategories(cats []string) (string, error) {
	if cats == nil {
		cats = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cats); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
