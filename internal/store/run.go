package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/model"
)

type RunStore struct {
	db *database.DB
}

func NewRunStore(db *database.DB) *RunStore {
	return &RunStore{db: db}
}

// Create records a finished run, assigning an id when run.ID is empty.
func (s *RunStore) Create(run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var sync model.SyncSummary
	if run.Sync != nil {
		sync = *run.Sync
	}
	var cleanup model.CleanupSummary
	if run.Cleanup != nil {
		cleanup = *run.Cleanup
	}
	var dryRun int
	if run.DryRun {
		dryRun = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO sync_runs (id, mode, dry_run, fetched, inserted, updated, unchanged, archived, cancelled, errors, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, dryRun, sync.Fetched, sync.Inserted, sync.Updated, sync.Unchanged,
		cleanup.Archived, cleanup.Cancelled, sync.Errors+cleanup.Errors,
		utc(run.StartedAt), utc(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// ListRecent returns the newest runs first.
func (s *RunStore) ListRecent(limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, mode, dry_run, fetched, inserted, updated, unchanged, archived, cancelled, errors, started_at, finished_at
		 FROM sync_runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var dryRun, errs int
		var sync model.SyncSummary
		var cleanup model.CleanupSummary
		if err := rows.Scan(&r.ID, &r.Mode, &dryRun, &sync.Fetched, &sync.Inserted, &sync.Updated, &sync.Unchanged,
			&cleanup.Archived, &cleanup.Cancelled, &errs, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		r.DryRun = dryRun != 0
		switch r.Mode {
		case model.RunModeCleanup:
			cleanup.Errors = errs
			r.Cleanup = &cleanup
		default:
			sync.Errors = errs
			r.Sync = &sync
			if cleanup.Archived+cleanup.Cancelled > 0 {
				r.Cleanup = &cleanup
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
