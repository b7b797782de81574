package model

import "time"

// Run modes. Preview runs are never recorded.
const (
	RunModeSync    = "sync"
	RunModeCleanup = "cleanup"
	RunModePreview = "preview"
)

// SyncSummary reports the outcome of one reconciliation pass.
type SyncSummary struct {
	Fetched   int            `json:"fetched"`
	Inserted  int            `json:"inserted"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Errors    int            `json:"errors"`
	Resolved  int            `json:"venues_resolved"`
	BySource  map[Source]int `json:"by_source,omitempty"`
	DryRun    bool           `json:"dry_run"`
	// NoSnapshot is set when prior hashes could not be loaded and every
	// event was written.
	NoSnapshot bool `json:"no_snapshot,omitempty"`
}

// CleanupSummary reports lifecycle transitions made by a cleanup pass.
type CleanupSummary struct {
	Archived  int  `json:"archived"`
	Cancelled int  `json:"cancelled"`
	Errors    int  `json:"errors"`
	DryRun    bool `json:"dry_run"`
}

// Run is a sync_runs row.
type Run struct {
	ID         string          `json:"id"`
	Mode       string          `json:"mode"`
	DryRun     bool            `json:"dry_run"`
	Sync       *SyncSummary    `json:"sync,omitempty"`
	Cleanup    *CleanupSummary `json:"cleanup,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
