// Package storage persists scheduled tasks and the append-only audit
// log. Drivers: sqlite (default) and memory (tests, dry runs). An
// optional JSONL fallback file catches audit entries the primary driver
// rejects.
package storage
