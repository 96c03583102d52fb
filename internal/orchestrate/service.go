package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"sentinel/internal/eventbus"
	"sentinel/internal/panel"
	"sentinel/internal/parse"
	"sentinel/internal/storage"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

// Config controls execution behavior.
//
// Defaults (when fields are omitted/zero):
//   - max_retries: 3
//   - overdue_grace: 30m
//   - rate_per_sec: 5 (panel call pacing during sweeps)
//   - due_tolerance: 1m
//   - max_tasks: 25
//   - max_overdue_age: 24h
type Config struct {
	MaxRetries    int
	OverdueGrace  time.Duration
	RatePerSec    int
	DueTolerance  time.Duration
	MaxTasks      int
	StopOnError   bool
	MaxOverdueAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.OverdueGrace <= 0 {
		c.OverdueGrace = 30 * time.Minute
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.DueTolerance <= 0 {
		c.DueTolerance = time.Minute
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = 25
	}
	if c.MaxOverdueAge <= 0 {
		c.MaxOverdueAge = 24 * time.Hour
	}
	return c
}

// Service sequences validation, persistence, audit, and event steps
// around the aggregate. It is safe for concurrent use, within the
// last-writer-wins limits documented on task.Store.
type Service struct {
	cfg       Config
	store     storage.Store
	validator *validate.Validator
	parser    *parse.Parser
	ctrl      panel.Controller
	dir       panel.Directory
	bus       eventbus.Bus
	log       logx.Logger

	limiter *rate.Limiter

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, store storage.Store, validator *validate.Validator, parser *parse.Parser,
	ctrl panel.Controller, dir panel.Directory, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if parser == nil {
		parser = parse.New("")
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		validator: validator,
		parser:    parser,
		ctrl:      ctrl,
		dir:       dir,
		bus:       bus,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		now:       time.Now,
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// canManage reports whether actor may manage a task owned by owner.
// A missing or failing directory degrades to owner-only, never to no
// check.
func (s *Service) canManage(ctx context.Context, actorID, ownerID string) bool {
	if actorID != "" && actorID == ownerID {
		return true
	}
	if s.dir == nil {
		return false
	}
	u, err := s.dir.FindUser(ctx, actorID)
	if err != nil {
		if !errors.Is(err, panel.ErrUnknownUser) {
			s.log.Warn("user lookup failed; treating as non-admin", logx.Any("err", err), logx.String("actor", actorID))
		}
		return false
	}
	return u.Role == panel.RoleAdmin
}

// isAdmin reports whether actor has the admin role.
func (s *Service) isAdmin(ctx context.Context, actorID string) bool {
	if s.dir == nil {
		return false
	}
	u, err := s.dir.FindUser(ctx, actorID)
	return err == nil && u.Role == panel.RoleAdmin
}

// audit appends an audit entry; failures are logged and swallowed.
func (s *Service) audit(ctx context.Context, category, actorID, taskID string, okFlag bool, message string, meta any) {
	if s.store == nil {
		return
	}
	var metaJSON string
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = string(b)
		}
	}
	e := storage.AuditEntry{
		At:       s.now(),
		Category: category,
		ActorID:  actorID,
		TaskID:   taskID,
		OK:       okFlag,
		Message:  message,
		MetaJSON: metaJSON,
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.Any("err", err), logx.String("category", category))
	}
}

// publish emits a bus event; the bus is fire-and-forget by contract.
func (s *Service) publish(topic string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: topic, Time: s.now(), Data: data})
}

// guard converts a panic inside op into a system failure so programming
// errors surface as results, not crashes, at the orchestrator boundary.
func guard[T any](log logx.Logger, op string, fn func() Result[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestrator panic", logx.String("op", op), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			res = fail[T](KindSystem, "internal error")
		}
	}()
	return fn()
}
