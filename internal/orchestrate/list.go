package orchestrate

import (
	"context"
	"sort"
	"strings"
	"time"

	"sentinel/internal/task"
)

// TimeWindow restricts a listing to tasks whose next run falls in a
// named window relative to now.
type TimeWindow string

const (
	WindowAny      TimeWindow = ""
	WindowToday    TimeWindow = "today"
	WindowWeek     TimeWindow = "week"
	WindowMonth    TimeWindow = "month"
	WindowUpcoming TimeWindow = "upcoming"
	WindowOverdue  TimeWindow = "overdue"
)

// SortField selects the listing order.
type SortField string

const (
	SortByNextRun SortField = "next_run"
	SortByCreated SortField = "created"
	SortByUpdated SortField = "updated"
	SortByStatus  SortField = "status"
)

// ListRequest filters, sorts, and paginates schedules. Empty filter
// fields match everything; an actor sees only their own schedules
// unless they are an admin.
type ListRequest struct {
	ActorID string

	UserID   string
	Statuses []task.Status
	Action   task.ActionType
	Window   TimeWindow

	// Search matches case-insensitively against the task description
	// and ID.
	Search string

	SortBy     SortField
	Descending bool

	Offset int
	Limit  int
}

// ListData is one page of results plus the totals of the filtered set.
type ListData struct {
	Tasks   []*task.ScheduledTask `json:"tasks"`
	Total   int                   `json:"total"`
	Offset  int                   `json:"offset"`
	Summary Summary               `json:"summary"`
}

// Summary aggregates the whole filtered set, not just the page.
type Summary struct {
	ByStatus map[task.Status]int     `json:"by_status"`
	ByAction map[task.ActionType]int `json:"by_action"`
	Overdue  int                     `json:"overdue"`
	NextRun  *time.Time              `json:"next_run,omitempty"`
}

// List returns schedules matching the request. Non-admin actors are
// silently scoped to their own schedules regardless of the UserID
// filter.
func (s *Service) List(ctx context.Context, req ListRequest) Result[ListData] {
	return guard(s.log, "list", func() Result[ListData] {
		now := s.now()

		if !s.isAdmin(ctx, req.ActorID) {
			req.UserID = req.ActorID
			if req.UserID == "" {
				// An anonymous caller owns nothing.
				return ok(ListData{Summary: summarize(nil, now)})
			}
		}

		tasks, err := s.fetch(ctx, req)
		if err != nil {
			return fail[ListData](KindSystem, "load schedules: %v", err)
		}

		filtered := tasks[:0:0]
		for _, t := range tasks {
			if matches(t, req, now) {
				filtered = append(filtered, t)
			}
		}

		sortTasks(filtered, req.SortBy, req.Descending)
		summary := summarize(filtered, now)

		total := len(filtered)
		page := paginate(filtered, req.Offset, req.Limit)

		return ok(ListData{Tasks: page, Total: total, Offset: req.Offset, Summary: summary})
	})
}

// fetch picks the narrowest store query the filters allow; the rest is
// filtered in memory.
func (s *Service) fetch(ctx context.Context, req ListRequest) ([]*task.ScheduledTask, error) {
	switch {
	case req.UserID != "" && len(req.Statuses) > 0:
		return s.store.FindByUserAndStatus(ctx, req.UserID, req.Statuses...)
	case req.UserID != "":
		return s.store.FindByUser(ctx, req.UserID)
	case len(req.Statuses) == 1:
		return s.store.FindByStatus(ctx, req.Statuses[0])
	case req.Action != "":
		return s.store.FindByActionType(ctx, req.Action)
	default:
		if to, ok := windowUpperBound(req.Window, s.now()); ok {
			return s.store.FindDueBetween(ctx, s.now(), to)
		}
		return s.store.All(ctx)
	}
}

func matches(t *task.ScheduledTask, req ListRequest, now time.Time) bool {
	if len(req.Statuses) > 0 && !statusIn(t.Status, req.Statuses) {
		return false
	}
	if req.Action != "" && t.Action != req.Action {
		return false
	}
	if !inWindow(t, req.Window, now) {
		return false
	}
	if req.Search != "" {
		q := strings.ToLower(req.Search)
		if !strings.Contains(strings.ToLower(t.Describe()), q) &&
			!strings.Contains(strings.ToLower(t.ID), q) {
			return false
		}
	}
	return true
}

func statusIn(s task.Status, set []task.Status) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}

// windowUpperBound returns the exclusive upper bound a bounded window
// imposes on the next run, letting fetch narrow the store query.
func windowUpperBound(w TimeWindow, now time.Time) (time.Time, bool) {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1), true
	case WindowWeek:
		return now.AddDate(0, 0, 7), true
	case WindowMonth:
		return now.AddDate(0, 1, 0), true
	default:
		return time.Time{}, false
	}
}

func inWindow(t *task.ScheduledTask, w TimeWindow, now time.Time) bool {
	switch w {
	case WindowAny:
		return true
	case WindowOverdue:
		return t.Status == task.StatusActive && t.Overdue(now, 0)
	}
	if t.NextRun == nil || t.NextRun.Before(now) {
		return false
	}
	switch w {
	case WindowToday:
		y1, m1, d1 := now.Date()
		y2, m2, d2 := t.NextRun.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case WindowWeek:
		return t.NextRun.Before(now.AddDate(0, 0, 7))
	case WindowMonth:
		return t.NextRun.Before(now.AddDate(0, 1, 0))
	case WindowUpcoming:
		return true
	default:
		return true
	}
}

func sortTasks(tasks []*task.ScheduledTask, by SortField, desc bool) {
	less := func(a, b *task.ScheduledTask) bool {
		switch by {
		case SortByCreated:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortByUpdated:
			return a.UpdatedAt.Before(b.UpdatedAt)
		case SortByStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
			return a.CreatedAt.Before(b.CreatedAt)
		default: // next run; nil runs sort last
			switch {
			case a.NextRun == nil && b.NextRun == nil:
				return a.CreatedAt.Before(b.CreatedAt)
			case a.NextRun == nil:
				return false
			case b.NextRun == nil:
				return true
			default:
				return a.NextRun.Before(*b.NextRun)
			}
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if desc {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})
}

func paginate(tasks []*task.ScheduledTask, offset, limit int) []*task.ScheduledTask {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tasks) {
		return nil
	}
	tasks = tasks[offset:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}

func summarize(tasks []*task.ScheduledTask, now time.Time) Summary {
	sum := Summary{
		ByStatus: make(map[task.Status]int),
		ByAction: make(map[task.ActionType]int),
	}
	for _, t := range tasks {
		sum.ByStatus[t.Status]++
		sum.ByAction[t.Action]++
		if t.Status == task.StatusActive && t.Overdue(now, 0) {
			sum.Overdue++
		}
		if t.NextRun != nil && t.NextRun.After(now) {
			if sum.NextRun == nil || t.NextRun.Before(*sum.NextRun) {
				nr := *t.NextRun
				sum.NextRun = &nr
			}
		}
	}
	return sum
}
