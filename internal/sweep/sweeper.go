// Package sweep runs the periodic due-task sweep: a cron-driven
// trigger that asks the orchestrator to execute everything due within
// the configured tolerance. The sweeper is trigger-only; execution,
// retries, and bookkeeping live in the orchestrator.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sentinel/internal/orchestrate"
	logx "sentinel/pkg/logx"
)

// Config controls the sweep cadence.
type Config struct {
	Enabled bool

	// Every is the sweep interval. Defaults to one minute.
	Every time.Duration

	Tolerance     time.Duration
	MaxTasks      int
	StopOnError   bool
	MaxOverdueAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.Every <= 0 {
		c.Every = time.Minute
	}
	return c
}

// Service triggers due-task sweeps on a fixed interval.
type Service struct {
	log logx.Logger
	svc *orchestrate.Service

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	running bool

	// last run bookkeeping for diagnostics
	lastAt     time.Time
	lastReport orchestrate.SweepReport
	lastErr    string
	runs       uint64
}

func New(cfg Config, svc *orchestrate.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), svc: svc, log: log}
}

// Apply swaps the config. A changed interval restarts the cron trigger.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	restart := s.running && (cfg.Every != s.cfg.Every || cfg.Enabled != s.cfg.Enabled)
	s.cfg = cfg
	if !restart {
		return
	}
	s.stopLocked()
	if cfg.Enabled {
		s.startLocked()
	}
}

// Start begins periodic sweeping. Idempotent; a disabled config makes
// Start a no-op until Apply enables it.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	if !s.cfg.Enabled || s.c != nil {
		return
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	c := cron.New()
	// @every keeps the cadence independent of wall-clock alignment.
	_, err := c.AddFunc("@every "+s.cfg.Every.String(), s.runOnce)
	if err != nil {
		s.log.Error("register sweep trigger", logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("sweeper started", logx.Duration("every", s.cfg.Every))
}

// Stop halts the trigger. A sweep already in flight finishes.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("sweeper stopped")
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.c = nil
}

func (s *Service) runOnce() {
	s.mu.Lock()
	opts := orchestrate.SweepOptions{
		Tolerance:     s.cfg.Tolerance,
		MaxTasks:      s.cfg.MaxTasks,
		StopOnError:   s.cfg.StopOnError,
		MaxOverdueAge: s.cfg.MaxOverdueAge,
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res := s.svc.ExecuteDue(ctx, opts)

	s.mu.Lock()
	s.runs++
	s.lastAt = time.Now()
	if res.OK {
		s.lastReport = res.Data
		s.lastErr = ""
	} else {
		s.lastErr = res.Err.Message
	}
	s.mu.Unlock()

	if !res.OK {
		s.log.Error("sweep failed", logx.String("err", res.Err.Message))
		return
	}
	if res.Data.Examined > 0 {
		s.log.Info("sweep completed",
			logx.Int("examined", res.Data.Examined),
			logx.Int("succeeded", res.Data.Succeeded),
			logx.Int("failed", res.Data.Failed),
			logx.Int("skipped", res.Data.Skipped))
	}
}

// Snapshot is the sweeper's diagnostic state.
type Snapshot struct {
	Enabled    bool                    `json:"enabled"`
	Running    bool                    `json:"running"`
	Every      time.Duration           `json:"every"`
	Runs       uint64                  `json:"runs"`
	LastAt     time.Time               `json:"last_at"`
	LastReport orchestrate.SweepReport `json:"last_report"`
	LastErr    string                  `json:"last_err,omitempty"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:    s.cfg.Enabled,
		Running:    s.c != nil,
		Every:      s.cfg.Every,
		Runs:       s.runs,
		LastAt:     s.lastAt,
		LastReport: s.lastReport,
		LastErr:    s.lastErr,
	}
}
