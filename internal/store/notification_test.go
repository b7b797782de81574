package store

import (
	"testing"
	"time"
)

func TestNotificationSentLog(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))

	sent, err := s.WasSent("downtown-1", "week")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("expected not sent")
	}

	if err := s.RecordSent("downtown-1", "week", base); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordSent("downtown-1", "week", base.Add(time.Hour)); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}

	if sent, _ := s.WasSent("downtown-1", "week"); !sent {
		t.Error("expected sent after record")
	}
	if sent, _ := s.WasSent("downtown-1", "day"); sent {
		t.Error("reminder types must be tracked separately")
	}

	n, err := s.CleanupSent(base.Add(time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned %d rows, want 1", n)
	}
}
