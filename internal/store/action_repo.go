package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActionKind names an operator mutation.
type ActionKind string

// Audited operator mutations.
const (
	ActionCreateFeed      ActionKind = "create_feed"
	ActionDeleteFeed      ActionKind = "delete_feed"
	ActionSetAutoProcess  ActionKind = "set_auto_process"
	ActionIngestFeed      ActionKind = "ingest_feed"
	ActionQueueEpisodes   ActionKind = "queue_episodes"
	ActionIgnoreEpisodes  ActionKind = "ignore_episodes"
	ActionRestoreEpisodes ActionKind = "restore_episodes"
	ActionReportProgress  ActionKind = "report_progress"
)

// Action is one audited mutation performed through the console.
type Action struct {
	// ID is a UUIDv7, so IDs sort by creation time.
	ID     uuid.UUID  `json:"id"`
	Kind   ActionKind `json:"action"`
	FeedID *int64     `json:"feed_id,omitempty"`
	// EpisodeIDs lists the episodes the operator targeted.
	EpisodeIDs []int64 `json:"episode_ids"`
	// Affected is the count the manager reported as changed.
	Affected int       `json:"affected"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// ActionRepository persists the audit log.
type ActionRepository interface {
	// RecordAction appends one entry.
	RecordAction(ctx context.Context, action Action) error
	// ListActions returns entries newest first.
	ListActions(ctx context.Context, limit, offset int) ([]Action, error)
}

// NoopActions discards every entry.
type NoopActions struct{}

// RecordAction implements ActionRepository.
func (NoopActions) RecordAction(context.Context, Action) error { return nil }

// ListActions implements ActionRepository.
func (NoopActions) ListActions(context.Context, int, int) ([]Action, error) { return nil, nil }
