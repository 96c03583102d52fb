package storage

import (
	"context"
	"errors"
	"strings"

	logx "sentinel/pkg/logx"
)

// Open initializes the configured store.
//
// The task store is load-bearing (the scheduling core cannot run
// without it), so there is no disabled mode: an empty driver selects
// sqlite when a path is set and memory otherwise.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "sqlite"
		} else {
			driver = "memory"
		}
	}

	var (
		st  Store
		err error
	)
	switch driver {
	case "memory":
		st = NewMemory()
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.AuditFallbackPath) != "" {
		st = &fallbackStore{Store: st, fallback: newAuditFile(cfg.AuditFallbackPath), log: log}
	}
	return st, nil
}

// fallbackStore diverts failed audit appends to a JSONL file so audit
// trouble never escalates into operation failures upstream.
type fallbackStore struct {
	Store
	fallback *auditFile
	log      logx.Logger
}

func (s *fallbackStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	err := s.Store.AppendAudit(ctx, e)
	if err == nil {
		return nil
	}
	s.log.Warn("audit append failed; using fallback file", logx.Any("err", err), logx.String("category", e.Category))
	if ferr := s.fallback.Append(e); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}
