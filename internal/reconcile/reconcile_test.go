package reconcile

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/dukerupert/eventsync/internal/fingerprint"
	"github.com/dukerupert/eventsync/internal/model"
)

var now = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type row struct {
	ev       model.CanonicalEvent
	hash     string
	status   model.Status
	lastSeen time.Time
}

// memStore is an in-memory Store that records every write.
type memStore struct {
	rows        map[string]*row
	snapshotErr error
	failUpsert  map[string]bool
	upserts     []string
	touches     []string
	statuses    []string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*row), failUpsert: make(map[string]bool)}
}

func (m *memStore) Snapshot() (map[string]string, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	out := make(map[string]string)
	for id, r := range m.rows {
		if r.status != model.StatusCancelled {
			out[id] = r.hash
		}
	}
	return out, nil
}

func (m *memStore) Upsert(u model.EventUpsert) error {
	if m.failUpsert[u.Event.ID] {
		return errors.New("constraint failed")
	}
	m.upserts = append(m.upserts, u.Event.ID)
	m.rows[u.Event.ID] = &row{ev: u.Event, hash: u.ContentHash, status: model.StatusConfirmed, lastSeen: u.SeenAt}
	return nil
}

func (m *memStore) Touch(id string, seenAt time.Time) error {
	m.touches = append(m.touches, id)
	if r, ok := m.rows[id]; ok {
		r.lastSeen = seenAt
	}
	return nil
}

func (m *memStore) ArchiveCandidates(endedBefore time.Time) ([]string, error) {
	var ids []string
	for id, r := range m.rows {
		if r.status == model.StatusConfirmed && r.ev.EndDateTime.Before(endedBefore) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) CancelCandidates(seenBefore, now time.Time) ([]string, error) {
	var ids []string
	for id, r := range m.rows {
		if r.status == model.StatusConfirmed && r.ev.Source != model.SourceManual &&
			r.lastSeen.Before(seenBefore) && r.ev.EndDateTime.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) SetStatus(id string, from, to model.Status, at time.Time) (bool, error) {
	m.statuses = append(m.statuses, id+"="+string(to))
	r, ok := m.rows[id]
	if !ok || r.status != from {
		return false, nil
	}
	r.status = to
	return true, nil
}

func (m *memStore) writes() int { return len(m.upserts) + len(m.touches) + len(m.statuses) }

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) string { return m[name] }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newReconciler(s Store, dryRun bool) *Reconciler {
	return New(s, mapResolver{"Blue Room": "blue-room"}, Options{DryRun: dryRun},
		WithLogger(quiet()), WithClock(func() time.Time { return now }))
}

func event(id, title string, start time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		ID:            id,
		Source:        model.SourceDowntown,
		SourceID:      id,
		Title:         title,
		StartDateTime: start,
		EndDateTime:   start.Add(2 * time.Hour),
		Venue:         &model.Venue{Name: "Blue Room"},
	}
}

// seed stores ev as if written by an earlier run.
func (m *memStore) seed(ev model.CanonicalEvent, seen time.Time) {
	m.rows[ev.ID] = &row{
		ev:       ev,
		hash:     fingerprint.ContentHash(ev, fingerprint.DefaultDescriptionPrefix),
		status:   model.StatusConfirmed,
		lastSeen: seen,
	}
}

func TestSyncClassifiesAndWrites(t *testing.T) {
	st := newMemStore()
	same := event("same", "Jazz Night", now.Add(24*time.Hour))
	changed := event("changed", "Art Walk", now.Add(48*time.Hour))
	st.seed(same, now.Add(-6*time.Hour))
	st.seed(changed, now.Add(-6*time.Hour))

	changed.Title = "Art Walk: Fall Edition"
	fresh := event("fresh", "Trivia", now.Add(72*time.Hour))

	summary := newReconciler(st, false).Sync([]model.CanonicalEvent{same, changed, fresh})

	if summary.Inserted != 1 || summary.Updated != 1 || summary.Unchanged != 1 || summary.Errors != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Resolved != 3 {
		t.Errorf("resolved = %d, want 3", summary.Resolved)
	}
	if summary.BySource[model.SourceDowntown] != 3 {
		t.Errorf("by source = %v", summary.BySource)
	}

	// The unchanged event gets no content write, only a last-seen touch.
	for _, id := range st.upserts {
		if id == "same" {
			t.Error("unchanged event was upserted")
		}
	}
	if len(st.touches) != 1 || st.touches[0] != "same" {
		t.Errorf("touches = %v, want [same]", st.touches)
	}
	if !st.rows["same"].lastSeen.Equal(now) {
		t.Errorf("last seen = %v, want %v", st.rows["same"].lastSeen, now)
	}
	if len(st.upserts) != 2 {
		t.Errorf("upserts = %v", st.upserts)
	}
}

func TestSyncDryRunMatchesLiveCounts(t *testing.T) {
	build := func() (*memStore, []model.CanonicalEvent) {
		st := newMemStore()
		a := event("a", "A", now.Add(24*time.Hour))
		b := event("b", "B", now.Add(24*time.Hour))
		st.seed(a, now.Add(-time.Hour))
		st.seed(b, now.Add(-time.Hour))
		b.Description = "new text"
		return st, []model.CanonicalEvent{a, b, event("c", "C", now.Add(time.Hour))}
	}

	dryStore, events := build()
	dry := newReconciler(dryStore, true).Sync(events)
	liveStore, events := build()
	live := newReconciler(liveStore, false).Sync(events)

	if dry.Inserted != live.Inserted || dry.Updated != live.Updated || dry.Unchanged != live.Unchanged {
		t.Errorf("dry %+v != live %+v", dry, live)
	}
	if !dry.DryRun || live.DryRun {
		t.Errorf("dry run flags = %v/%v", dry.DryRun, live.DryRun)
	}
	if dryStore.writes() != 0 {
		t.Errorf("dry run issued %d writes", dryStore.writes())
	}
	if liveStore.writes() != 3 {
		t.Errorf("live run issued %d writes, want 3", liveStore.writes())
	}
}

func TestSyncCountsStatementErrors(t *testing.T) {
	st := newMemStore()
	st.failUpsert["bad"] = true
	events := []model.CanonicalEvent{
		event("ok1", "One", now.Add(time.Hour)),
		event("bad", "Bad", now.Add(2*time.Hour)),
		event("ok2", "Two", now.Add(3*time.Hour)),
	}
	summary := newReconciler(st, false).Sync(events)
	if summary.Errors != 1 || summary.Inserted != 2 {
		t.Errorf("summary = %+v, want 1 error and 2 inserts", summary)
	}
}

func TestSyncWithoutSnapshotWritesEverything(t *testing.T) {
	st := newMemStore()
	same := event("same", "Same", now.Add(time.Hour))
	st.seed(same, now.Add(-time.Hour))
	st.snapshotErr = errors.New("database is locked")

	summary := newReconciler(st, false).Sync([]model.CanonicalEvent{same})
	if !summary.NoSnapshot {
		t.Error("NoSnapshot = false")
	}
	if len(st.upserts) != 1 || len(st.touches) != 0 {
		t.Errorf("upserts/touches = %v/%v, want a full upsert", st.upserts, st.touches)
	}
}

func TestSyncTruncatesDescription(t *testing.T) {
	st := newMemStore()
	ev := event("long", "Long", now.Add(time.Hour))
	for len(ev.Description) < 3000 {
		ev.Description += "lorem ipsum "
	}
	r := New(st, nil, Options{DescriptionLimit: 100}, WithLogger(quiet()), WithClock(func() time.Time { return now }))
	r.Sync([]model.CanonicalEvent{ev})
	if got := len([]rune(st.rows["long"].ev.Description)); got > 100 {
		t.Errorf("stored description has %d runes, want <= 100", got)
	}
}

func TestCleanupTransitions(t *testing.T) {
	st := newMemStore()

	past := event("past", "Ended Two Days Ago", now.Add(-50*time.Hour))
	st.seed(past, now.Add(-50*time.Hour))

	recent := event("recent", "Ended This Morning", now.Add(-5*time.Hour))
	st.seed(recent, now.Add(-60*time.Hour))

	stale := event("stale", "Vanished Upstream", now.Add(72*time.Hour))
	st.seed(stale, now.Add(-49*time.Hour))

	manual := event("manual", "Hand Entered", now.Add(72*time.Hour))
	manual.Source = model.SourceManual
	st.seed(manual, now.Add(-49*time.Hour))

	seen := event("seen", "Still Listed", now.Add(72*time.Hour))
	st.seed(seen, now.Add(-47*time.Hour))

	summary := newReconciler(st, false).Cleanup()
	if summary.Archived != 1 || summary.Cancelled != 1 || summary.Errors != 0 {
		t.Errorf("summary = %+v, want 1 archived, 1 cancelled", summary)
	}

	want := map[string]model.Status{
		"past":   model.StatusPast,
		"recent": model.StatusConfirmed,
		"stale":  model.StatusCancelled,
		"manual": model.StatusConfirmed,
		"seen":   model.StatusConfirmed,
	}
	for id, status := range want {
		if got := st.rows[id].status; got != status {
			t.Errorf("%s status = %s, want %s", id, got, status)
		}
	}
}

func TestCleanupDryRun(t *testing.T) {
	st := newMemStore()
	st.seed(event("past", "Past", now.Add(-50*time.Hour)), now.Add(-50*time.Hour))
	st.seed(event("stale", "Stale", now.Add(72*time.Hour)), now.Add(-49*time.Hour))

	summary := newReconciler(st, true).Cleanup()
	if summary.Archived != 1 || summary.Cancelled != 1 || !summary.DryRun {
		t.Errorf("summary = %+v", summary)
	}
	if st.writes() != 0 {
		t.Errorf("dry run issued %d writes", st.writes())
	}
	if st.rows["stale"].status != model.StatusConfirmed {
		t.Error("dry run changed status")
	}
}

// staleCandidates lists rows as candidates after another writer has
// already moved them.
type staleCandidates struct {
	*memStore
}

func (s staleCandidates) ArchiveCandidates(time.Time) ([]string, error) {
	return []string{"past"}, nil
}

func (s staleCandidates) CancelCandidates(time.Time, time.Time) ([]string, error) {
	return []string{"stale"}, nil
}

func TestCleanupSkipsAlreadyMoved(t *testing.T) {
	st := newMemStore()
	st.seed(event("past", "Past", now.Add(-50*time.Hour)), now.Add(-50*time.Hour))
	st.seed(event("stale", "Stale", now.Add(72*time.Hour)), now.Add(-49*time.Hour))
	st.rows["past"].status = model.StatusPast
	st.rows["stale"].status = model.StatusCancelled

	summary := newReconciler(staleCandidates{st}, false).Cleanup()
	if summary.Archived != 0 || summary.Cancelled != 0 || summary.Errors != 0 {
		t.Errorf("summary = %+v, want nothing counted", summary)
	}
	if st.rows["past"].status != model.StatusPast || st.rows["stale"].status != model.StatusCancelled {
		t.Error("status rewritten for a row already moved")
	}
}
