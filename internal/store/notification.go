package store

import (
	"fmt"
	"time"

	"github.com/dukerupert/eventsync/internal/database"
)

type NotificationStore struct {
	db *database.DB
}

func NewNotificationStore(db *database.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// RecordSent logs a reminder. Recording the same pair twice is a no-op.
func (s *NotificationStore) RecordSent(eventID, reminderType string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_log (event_id, reminder_type, sent_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		eventID, reminderType, utc(at),
	)
	if err != nil {
		return fmt.Errorf("record sent notification: %w", err)
	}
	return nil
}

// WasSent reports whether the reminder for this event was already delivered.
func (s *NotificationStore) WasSent(eventID, reminderType string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notification_log WHERE event_id = ? AND reminder_type = ?`,
		eventID, reminderType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes log rows older than before.
func (s *NotificationStore) CleanupSent(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM notification_log WHERE sent_at < ?`, utc(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications rows affected: %w", err)
	}
	return n, nil
}
