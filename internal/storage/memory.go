package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/schedule"
	"sentinel/internal/task"
)

// Memory is the in-process Store. Reads return copies so callers can
// mutate aggregates freely before Save.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*task.ScheduledTask
	audit []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{tasks: map[string]*task.ScheduledTask{}}
}

func (m *Memory) Close() error { return nil }

func copyTask(t *task.ScheduledTask) *task.ScheduledTask {
	cp := *t
	cp.Recurrence.Days = append([]schedule.Weekday(nil), t.Recurrence.Days...)
	cp.Params.ZoneIDs = append([]string(nil), t.Params.ZoneIDs...)
	if t.NextRun != nil {
		nr := *t.NextRun
		cp.NextRun = &nr
	}
	if t.LastRun != nil {
		lr := *t.LastRun
		cp.LastRun = &lr
	}
	return &cp
}

func (m *Memory) Save(_ context.Context, t *task.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = copyTask(t)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return task.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*task.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return copyTask(t), nil
}

func (m *Memory) filter(keep func(*task.ScheduledTask) bool) []*task.ScheduledTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.ScheduledTask
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) FindByUser(_ context.Context, userID string) ([]*task.ScheduledTask, error) {
	return m.filter(func(t *task.ScheduledTask) bool { return t.UserID == userID }), nil
}

func (m *Memory) FindByUserAndStatus(_ context.Context, userID string, statuses ...task.Status) ([]*task.ScheduledTask, error) {
	return m.filter(func(t *task.ScheduledTask) bool {
		return t.UserID == userID && statusIn(t.Status, statuses)
	}), nil
}

func (m *Memory) FindByStatus(_ context.Context, status task.Status) ([]*task.ScheduledTask, error) {
	return m.filter(func(t *task.ScheduledTask) bool { return t.Status == status }), nil
}

func (m *Memory) FindByActionType(_ context.Context, action task.ActionType) ([]*task.ScheduledTask, error) {
	return m.filter(func(t *task.ScheduledTask) bool { return t.Action == action }), nil
}

func (m *Memory) FindDueBefore(_ context.Context, cutoff time.Time, limit int) ([]*task.ScheduledTask, error) {
	due := m.filter(func(t *task.ScheduledTask) bool {
		return t.Status == task.StatusActive && t.NextRun != nil && !t.NextRun.After(cutoff)
	})
	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(*due[j].NextRun) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) FindDueBetween(_ context.Context, from, to time.Time) ([]*task.ScheduledTask, error) {
	due := m.filter(func(t *task.ScheduledTask) bool {
		return t.NextRun != nil && !t.NextRun.Before(from) && t.NextRun.Before(to)
	})
	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(*due[j].NextRun) })
	return due, nil
}

func (m *Memory) All(_ context.Context) ([]*task.ScheduledTask, error) {
	return m.filter(func(*task.ScheduledTask) bool { return true }), nil
}

func (m *Memory) CountByUserAndStatuses(_ context.Context, userID string, statuses ...task.Status) (int, error) {
	n := 0
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.UserID != userID {
			continue
		}
		if len(statuses) == 0 || statusIn(t.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

// AuditEntries returns a copy of the audit log (test helper).
func (m *Memory) AuditEntries() []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AuditEntry(nil), m.audit...)
}

func statusIn(s task.Status, set []task.Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
