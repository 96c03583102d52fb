package app

import (
	"fmt"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/orchestrate"
	"sentinel/internal/panel"
	"sentinel/internal/schedule"
	"sentinel/internal/storage"
	"sentinel/internal/sweep"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

// The map* helpers translate the raw config file (durations as
// strings, clock times as "HH:MM") into typed service configs. They
// also serve as validation: every one of them runs inside the config
// manager's validator so a bad hot-reload is rejected before commit.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := storage.Config{
		Driver:            strings.TrimSpace(cfg.Storage.Driver),
		Path:              strings.TrimSpace(cfg.Storage.Path),
		AuditFallbackPath: strings.TrimSpace(cfg.Storage.AuditFallbackPath),
	}
	bt, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	sc.BusyTimeout = bt
	return sc, nil
}

func mapSweepConfig(cfg *config.Config) (sweep.Config, error) {
	every, err := config.ParseDurationOrDefault("sweep.every", cfg.Sweep.Every, time.Minute)
	if err != nil {
		return sweep.Config{}, err
	}
	tol, err := config.ParseDurationOrDefault("sweep.tolerance", cfg.Sweep.Tolerance, time.Minute)
	if err != nil {
		return sweep.Config{}, err
	}
	maxAge, err := config.ParseDurationOrDefault("sweep.max_overdue_age", cfg.Sweep.MaxOverdueAge, 24*time.Hour)
	if err != nil {
		return sweep.Config{}, err
	}
	continueOnError := true
	if cfg.Sweep.ContinueOnError != nil {
		continueOnError = *cfg.Sweep.ContinueOnError
	}
	return sweep.Config{
		Enabled:       cfg.Sweep.Enabled,
		Every:         every,
		Tolerance:     tol,
		MaxTasks:      cfg.Sweep.MaxTasks,
		StopOnError:   !continueOnError,
		MaxOverdueAge: maxAge,
	}, nil
}

func mapExecutorConfig(cfg *config.Config) (orchestrate.Config, error) {
	grace, err := config.ParseDurationOrDefault("executor.overdue_grace", cfg.Executor.OverdueGrace, 30*time.Minute)
	if err != nil {
		return orchestrate.Config{}, err
	}
	if cfg.Executor.MaxRetries < 0 {
		return orchestrate.Config{}, fmt.Errorf("executor.max_retries must be >= 0")
	}
	return orchestrate.Config{
		MaxRetries:   cfg.Executor.MaxRetries,
		OverdueGrace: grace,
		RatePerSec:   cfg.Executor.RatePerSec,
	}, nil
}

func mapValidationConfig(cfg *config.Config) (validate.Config, error) {
	v := cfg.Validation

	minAdv, err := config.ParseDurationOrDefault("validation.min_advance", v.MinAdvance, 5*time.Minute)
	if err != nil {
		return validate.Config{}, err
	}
	conflictTol, err := config.ParseDurationOrDefault("validation.conflict_tolerance", v.ConflictTolerance, 5*time.Minute)
	if err != nil {
		return validate.Config{}, err
	}
	logicalWin, err := config.ParseDurationOrDefault("validation.logical_conflict_window", v.LogicalConflictWindow, 15*time.Minute)
	if err != nil {
		return validate.Config{}, err
	}
	if v.MaxAdvanceDays < 0 {
		return validate.Config{}, fmt.Errorf("validation.max_advance_days must be >= 0")
	}
	if v.MaxPerUser < 0 {
		return validate.Config{}, fmt.Errorf("validation.max_per_user must be >= 0")
	}

	out := validate.Config{
		MinAdvance:            minAdv,
		MaxAdvanceDays:        v.MaxAdvanceDays,
		BlockNight:            v.BlockNight,
		BusinessHoursOnly:     v.BusinessHoursOnly,
		BlockWeekends:         v.BlockWeekends,
		MaxPerUser:            v.MaxPerUser,
		ConflictTolerance:     conflictTol,
		LogicalConflictWindow: logicalWin,
	}
	if s := strings.TrimSpace(v.NightStart); s != "" {
		t, err := schedule.ParseTimeOfDay(s)
		if err != nil {
			return validate.Config{}, fmt.Errorf("validation.night_start: %w", err)
		}
		out.NightStart = t
	}
	if s := strings.TrimSpace(v.NightEnd); s != "" {
		t, err := schedule.ParseTimeOfDay(s)
		if err != nil {
			return validate.Config{}, fmt.Errorf("validation.night_end: %w", err)
		}
		out.NightEnd = t
	}
	return out, nil
}

func mapDirectory(cfg *config.Config) panel.StaticDirectory {
	dir := panel.StaticDirectory{}
	for _, id := range cfg.Panel.Users {
		if id = strings.TrimSpace(id); id != "" {
			dir[id] = panel.RoleUser
		}
	}
	for _, id := range cfg.Panel.Admins {
		if id = strings.TrimSpace(id); id != "" {
			dir[id] = panel.RoleAdmin
		}
	}
	if len(dir) == 0 {
		return nil
	}
	return dir
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Bus: logx.BusConfig{
			Enabled:    cfg.Logging.Bus.Enabled,
			MinLevel:   cfg.Logging.Bus.MinLevel,
			RatePerSec: cfg.Logging.Bus.RatePerSec,
		},
	}
}
