package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage configures the task store and audit log.
	// Driver "sqlite" is the default; "memory" keeps everything in-process
	// (useful for tests and dry runs).
	Storage StorageConfig `json:"storage"`

	// Sweep controls the periodic due-task sweep.
	Sweep SweepConfig `json:"sweep"`

	// Executor controls single-task execution (retries, overdue gating).
	Executor ExecutorConfig `json:"executor"`

	// Validation tunes the schedule validation pipeline.
	Validation ValidationConfig `json:"validation"`

	// Parser tunes the natural-language schedule parser.
	Parser ParserConfig `json:"parser"`

	// Panel lists known users for ownership and admin checks.
	Panel PanelConfig `json:"panel"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Bus     LoggingBus  `json:"bus"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingBus mirrors warn+ log lines onto the event bus (rate limited).
type LoggingBus struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./sentinel.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// AuditFallbackPath receives audit entries as JSONL when the primary
	// driver rejects a write. Empty disables the fallback.
	AuditFallbackPath string `json:"audit_fallback_path,omitempty"`
}

// SweepConfig controls the periodic due-task sweep.
//
// All durations are Go duration strings (e.g. "30s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - every: "1m"
//   - tolerance: "1m"
//   - max_tasks: 25
//   - continue_on_error: true
//   - max_overdue_age: "24h"
type SweepConfig struct {
	Enabled bool   `json:"enabled"`
	Every   string `json:"every,omitempty"`

	// Tolerance widens the due window: tasks with next_run <= now+tolerance
	// are picked up by the sweep.
	Tolerance string `json:"tolerance,omitempty"`

	MaxTasks int `json:"max_tasks,omitempty"`

	// ContinueOnError is a pointer so we can distinguish "omitted"
	// (default true) from an explicit false.
	ContinueOnError *bool `json:"continue_on_error,omitempty"`

	// MaxOverdueAge filters out tasks overdue beyond this age so stale
	// tasks are not retried far past their intended window.
	MaxOverdueAge string `json:"max_overdue_age,omitempty"`
}

// ExecutorConfig controls single-task execution.
//
// Defaults:
//   - max_retries: 3
//   - overdue_grace: "30m" (tasks more overdue than this are refused
//     unless the caller overrides)
//   - rate_per_sec: 5 (panel call rate during sweeps)
type ExecutorConfig struct {
	MaxRetries   int    `json:"max_retries,omitempty"`
	OverdueGrace string `json:"overdue_grace,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
}

// ValidationConfig tunes the schedule validation pipeline.
//
// Defaults:
//   - min_advance: "5m"
//   - max_advance_days: 365
//   - night_start/night_end: "22:00"/"06:00"
//   - block_night: false (night schedules warn instead of erroring)
//   - max_per_user: 50
//   - conflict_tolerance: "5m"
//   - logical_conflict_window: "15m"
type ValidationConfig struct {
	MinAdvance     string `json:"min_advance,omitempty"`
	MaxAdvanceDays int    `json:"max_advance_days,omitempty"`

	NightStart string `json:"night_start,omitempty"`
	NightEnd   string `json:"night_end,omitempty"`
	BlockNight bool   `json:"block_night,omitempty"`

	BusinessHoursOnly bool `json:"business_hours_only,omitempty"`
	BlockWeekends     bool `json:"block_weekends,omitempty"`

	MaxPerUser int `json:"max_per_user,omitempty"`

	ConflictTolerance     string `json:"conflict_tolerance,omitempty"`
	LogicalConflictWindow string `json:"logical_conflict_window,omitempty"`
}

// PanelConfig describes the user directory for permission checks.
// An unknown actor can only manage their own schedules; ids listed in
// Admins can manage anyone's.
type PanelConfig struct {
	Users  []string `json:"users,omitempty"`
	Admins []string `json:"admins,omitempty"`
}

// ParserConfig tunes the natural-language schedule parser.
type ParserConfig struct {
	// Timezone is attached to parsed recurrences. Defaults to "UTC".
	Timezone string `json:"timezone,omitempty"`
}
