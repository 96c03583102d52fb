package orchestrate

import "time"

// ScheduleEvent is published for create/update/cancel lifecycle events.
type ScheduleEvent struct {
	TaskID  string     `json:"task_id"`
	UserID  string     `json:"user_id"`
	ActorID string     `json:"actor_id,omitempty"`
	Action  string     `json:"action"`
	Status  string     `json:"status"`
	NextRun *time.Time `json:"next_run,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// ExecutionEvent is published after every execution attempt.
type ExecutionEvent struct {
	TaskID   string        `json:"task_id"`
	UserID   string        `json:"user_id"`
	Action   string        `json:"action"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Attempt  int           `json:"attempt"`
	RetryAt  *time.Time    `json:"retry_at,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SweepEvent summarizes one due-task sweep.
type SweepEvent struct {
	Examined  int `json:"examined"`
	Executed  int `json:"executed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
