package storage

import (
	"context"
	"time"

	"sentinel/internal/task"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (also "sqlite3"): SQLite database file. The default when
//     Driver is empty and Path is set.
//   - "memory": in-process only; contents are lost on restart.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// AuditFallbackPath receives audit entries as JSONL when the primary
	// driver rejects a write. Empty disables the fallback.
	AuditFallbackPath string
}

// AuditEntry records one action taken by or on the scheduling core.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Category string    `json:"category"`
	ActorID  string    `json:"actor_id,omitempty"`
	TaskID   string    `json:"task_id,omitempty"`
	OK       bool      `json:"ok"`
	Message  string    `json:"message"`
	MetaJSON string    `json:"meta,omitempty"`
}

// AuditSink is the append-only audit contract.
type AuditSink interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence API: the task store plus the audit log.
type Store interface {
	task.Store
	AuditSink
	Close() error
}
