package task

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Store is the persistence contract for scheduled tasks.
//
// Contract:
//   - Save is an upsert keyed by task ID and must persist the full
//     aggregate state.
//   - Reads return copies; mutating a returned task does not affect the
//     store until Save.
//   - Save-after-load is last-writer-wins. There is no optimistic
//     concurrency guard, so two racing executions of the same task can
//     both commit; the single sweep loop makes this rare but a manual
//     execute racing the sweep can double-fire. Known gap.
type Store interface {
	FindByID(ctx context.Context, id string) (*ScheduledTask, error)
	FindByUser(ctx context.Context, userID string) ([]*ScheduledTask, error)
	FindByUserAndStatus(ctx context.Context, userID string, statuses ...Status) ([]*ScheduledTask, error)
	FindByStatus(ctx context.Context, status Status) ([]*ScheduledTask, error)
	FindByActionType(ctx context.Context, action ActionType) ([]*ScheduledTask, error)

	// FindDueBefore returns ACTIVE tasks with a next run at or before
	// cutoff, ordered by next run ascending, capped at limit (<=0 means
	// no cap).
	FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*ScheduledTask, error)

	// FindDueBetween returns tasks of any status with a next run in
	// [from, to), ordered by next run ascending. Terminal tasks never
	// match since cancellation and permanent failure clear the next run.
	FindDueBetween(ctx context.Context, from, to time.Time) ([]*ScheduledTask, error)

	// All returns every task (read models filter in memory).
	All(ctx context.Context) ([]*ScheduledTask, error)

	CountByUserAndStatuses(ctx context.Context, userID string, statuses ...Status) (int, error)

	Save(ctx context.Context, t *ScheduledTask) error
	Delete(ctx context.Context, id string) error
}
