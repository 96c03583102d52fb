package config

import (
	"strings"

	logx "sentinel/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Storage paths are surfaced; no secrets
// live in this config today, keep it that way.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.bus_enabled", newCfg.Logging.Bus.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if !sweepEqual(oldCfg.Sweep, newCfg.Sweep) {
		changed = append(changed, "sweep")
		attrs = append(attrs,
			logx.Bool("sweep.enabled", newCfg.Sweep.Enabled),
			logx.String("sweep.every", strings.TrimSpace(newCfg.Sweep.Every)),
			logx.Int("sweep.max_tasks", newCfg.Sweep.MaxTasks),
		)
	}

	if oldCfg.Executor != newCfg.Executor {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.Int("executor.max_retries", newCfg.Executor.MaxRetries),
			logx.String("executor.overdue_grace", strings.TrimSpace(newCfg.Executor.OverdueGrace)),
		)
	}

	if oldCfg.Validation != newCfg.Validation {
		changed = append(changed, "validation")
		attrs = append(attrs,
			logx.Int("validation.max_per_user", newCfg.Validation.MaxPerUser),
			logx.Bool("validation.block_night", newCfg.Validation.BlockNight),
			logx.Bool("validation.business_hours_only", newCfg.Validation.BusinessHoursOnly),
		)
	}

	if oldCfg.Parser != newCfg.Parser {
		changed = append(changed, "parser")
		attrs = append(attrs, logx.String("parser.timezone", strings.TrimSpace(newCfg.Parser.Timezone)))
	}

	if !stringsEqual(oldCfg.Panel.Users, newCfg.Panel.Users) ||
		!stringsEqual(oldCfg.Panel.Admins, newCfg.Panel.Admins) {
		changed = append(changed, "panel")
		attrs = append(attrs,
			logx.Int("panel.users", len(newCfg.Panel.Users)),
			logx.Int("panel.admins", len(newCfg.Panel.Admins)),
		)
	}

	return changed, attrs
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sweepEqual compares SweepConfig including the ContinueOnError pointer.
func sweepEqual(a, b SweepConfig) bool {
	if a.Enabled != b.Enabled || a.Every != b.Every || a.Tolerance != b.Tolerance ||
		a.MaxTasks != b.MaxTasks || a.MaxOverdueAge != b.MaxOverdueAge {
		return false
	}
	switch {
	case a.ContinueOnError == nil && b.ContinueOnError == nil:
		return true
	case a.ContinueOnError == nil || b.ContinueOnError == nil:
		return false
	default:
		return *a.ContinueOnError == *b.ContinueOnError
	}
}
