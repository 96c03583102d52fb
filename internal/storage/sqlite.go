package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sentinel/internal/schedule"
	"sentinel/internal/task"
	logx "sentinel/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, user_id, days, at_minutes, timezone, action, mode, zone_ids, status,
	created_at, updated_at, next_run, last_run, execution_count, failure_count, last_error, cancel_reason`

func (s *sqliteStore) Save(ctx context.Context, t *task.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id=excluded.user_id, days=excluded.days, at_minutes=excluded.at_minutes,
		   timezone=excluded.timezone, action=excluded.action, mode=excluded.mode,
		   zone_ids=excluded.zone_ids, status=excluded.status, created_at=excluded.created_at,
		   updated_at=excluded.updated_at, next_run=excluded.next_run, last_run=excluded.last_run,
		   execution_count=excluded.execution_count, failure_count=excluded.failure_count,
		   last_error=excluded.last_error, cancel_reason=excluded.cancel_reason`,
		t.ID, t.UserID, encodeDays(t.Recurrence.Days), t.Recurrence.At.Minutes(), t.Recurrence.Timezone,
		string(t.Action), nullStr(string(t.Params.Mode)), nullStr(strings.Join(t.Params.ZoneIDs, ",")),
		string(t.Status), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
		millisOrNil(t.NextRun), millisOrNil(t.LastRun), t.ExecutionCount, t.FailureCount,
		nullStr(t.LastError), nullStr(t.CancelReason),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) FindByID(ctx context.Context, id string) (*task.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) FindByUser(ctx context.Context, userID string) ([]*task.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at`, userID)
}

func (s *sqliteStore) FindByUserAndStatus(ctx context.Context, userID string, statuses ...task.Status) ([]*task.ScheduledTask, error) {
	if len(statuses) == 0 {
		return s.FindByUser(ctx, userID)
	}
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? AND status IN (` + placeholders(len(statuses)) + `) ORDER BY created_at`
	args := []any{userID}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.query(ctx, q, args...)
}

func (s *sqliteStore) FindByStatus(ctx context.Context, status task.Status) ([]*task.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at`, string(status))
}

func (s *sqliteStore) FindByActionType(ctx context.Context, action task.ActionType) ([]*task.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE action = ? ORDER BY created_at`, string(action))
}

func (s *sqliteStore) FindDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*task.ScheduledTask, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
	      WHERE status = ? AND next_run IS NOT NULL AND next_run <= ?
	      ORDER BY next_run`
	args := []any{string(task.StatusActive), cutoff.UnixMilli()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, q, args...)
}

func (s *sqliteStore) FindDueBetween(ctx context.Context, from, to time.Time) ([]*task.ScheduledTask, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
	      WHERE next_run IS NOT NULL AND next_run >= ? AND next_run < ?
	      ORDER BY next_run`
	return s.query(ctx, q, from.UnixMilli(), to.UnixMilli())
}

func (s *sqliteStore) All(ctx context.Context) ([]*task.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
}

func (s *sqliteStore) CountByUserAndStatuses(ctx context.Context, userID string, statuses ...task.Status) (int, error) {
	q := `SELECT COUNT(*) FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if len(statuses) > 0 {
		q += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	var n int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, category, actor_id, task_id, ok, message, meta)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UnixMilli(), e.Category, nullStr(e.ActorID), nullStr(e.TaskID),
		boolInt(e.OK), e.Message, nullStr(e.MetaJSON),
	)
	return err
}

// ---- scanning / encoding helpers ----

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]*task.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.ScheduledTask, error) {
	var (
		t                            task.ScheduledTask
		days, action, status         string
		atMinutes                    int
		mode, zones, lastErr, reason sql.NullString
		createdAt, updatedAt         int64
		nextRun, lastRun             sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &days, &atMinutes, &t.Recurrence.Timezone, &action, &mode, &zones,
		&status, &createdAt, &updatedAt, &nextRun, &lastRun, &t.ExecutionCount, &t.FailureCount,
		&lastErr, &reason)
	if err != nil {
		return nil, err
	}

	t.Recurrence.Days, err = decodeDays(days)
	if err != nil {
		return nil, err
	}
	t.Recurrence.At, err = schedule.NewTimeOfDay(atMinutes/60, atMinutes%60)
	if err != nil {
		return nil, err
	}
	t.Action = task.ActionType(action)
	t.Params.Mode = task.ArmMode(mode.String)
	if zones.String != "" {
		t.Params.ZoneIDs = strings.Split(zones.String, ",")
	}
	t.Status = task.Status(status)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	t.NextRun = timeFromMillis(nextRun)
	t.LastRun = timeFromMillis(lastRun)
	t.LastError = lastErr.String
	t.CancelReason = reason.String
	return &t, nil
}

func encodeDays(days []schedule.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func decodeDays(s string) ([]schedule.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]schedule.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad weekday %q: %w", p, err)
		}
		out = append(out, schedule.Weekday(n))
	}
	return out, nil
}

// Timestamps go through Unix milliseconds in both directions; a
// rendered time string would make the next_run SQL comparisons
// lexicographic, which breaks across UTC offsets.
func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
