package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// auditFile appends audit entries as JSONL. It is the fallback sink for
// when the primary driver rejects an audit write; losing audit data is
// worse than a slightly slower append path.
type auditFile struct {
	mu   sync.Mutex
	path string
}

func newAuditFile(path string) *auditFile {
	return &auditFile{path: path}
}

func (f *auditFile) Append(e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()
	_, err = fh.Write(b)
	return err
}
