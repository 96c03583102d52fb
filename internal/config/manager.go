package config

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "sentinel/pkg/logx"
)

const (
	// Editors and atomic-rename writers emit short event bursts per
	// save. Reload only after the file has been quiet this long.
	reloadQuiet = 250 * time.Millisecond

	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second

	validateTimeout = 5 * time.Second
)

// Manager owns the daemon's on-disk config: it parses the file, keeps
// the last good version, and fans committed updates out to
// subscribers. Watch keeps the in-memory config in step with the file.
type Manager struct {
	path string

	mu          sync.RWMutex
	current     *Config
	fingerprint uint64

	// subMu also covers sends in publish so Unsubscribe can never
	// close a channel mid-send.
	subMu sync.Mutex
	subs  []chan *Config

	log      logx.Logger
	validate func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a check run against freshly parsed configs
// before they are committed and published. A rejected config leaves
// the current one in place.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse reads and decodes the file without touching manager state.
func (m *Manager) Parse() (*Config, error) {
	return decodeFile(m.path)
}

// Load parses the file and installs the result as the current config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Commit installs cfg as the current config and records its
// fingerprint so redundant file events do not republish it.
func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.current = cfg
	m.fingerprint = fingerprint(cfg)
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// fingerprint hashes the JSON form of cfg. Zero means unknown and
// never matches, so a marshal failure degrades to always reloading.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unsubscribing a channel twice is
// a no-op.
func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, s := range m.subs {
		if s != ch {
			continue
		}
		last := len(m.subs) - 1
		m.subs[i] = m.subs[last]
		m.subs[last] = nil
		m.subs = m.subs[:last]
		close(ch)
		return
	}
}

// publish offers cfg to every subscriber. A full buffer loses its
// oldest entry first so slow subscribers converge on the newest config
// instead of stalling on history.
func (m *Manager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil || offer(ch, cfg) {
			continue
		}
		m.log.Debug("config update dropped, subscriber not keeping up",
			logx.Int("queue_cap", cap(ch)))
	}
}

func offer(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	// Evict the oldest queued config and retry once.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// reload parses the file and, when the content genuinely changed and
// passes validation, commits and publishes it.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Any("err", err))
		return
	}

	fp := fingerprint(cfg)
	m.mu.RLock()
	same := fp != 0 && fp == m.fingerprint
	m.mu.RUnlock()
	if same {
		m.log.Debug("config content unchanged", logx.String("path", m.path))
		return
	}

	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected, keeping current",
				logx.String("path", m.path), logx.Any("err", err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}

// Watch follows the config file and reloads it on change until ctx is
// cancelled. fsnotify watchers can wedge after editor rename dances,
// so a broken watcher is rebuilt with jittered backoff instead of
// giving up.
func (m *Manager) Watch(ctx context.Context) error {
	var (
		quietMu sync.Mutex
		quiet   *time.Timer
	)
	scheduleReload := func() {
		quietMu.Lock()
		defer quietMu.Unlock()
		if quiet != nil {
			quiet.Stop()
		}
		quiet = time.AfterFunc(reloadQuiet, func() { m.reload(ctx) })
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := watchBackoffMin
	for {
		if ctx.Err() != nil {
			return nil
		}
		attached, err := m.watchOnce(ctx, scheduleReload)
		if ctx.Err() != nil {
			return nil
		}
		if attached {
			backoff = watchBackoffMin
		}
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		m.log.Warn("config watcher stopped, rebuilding",
			logx.Any("err", err), logx.Duration("backoff", wait))
		if backoff < watchBackoffMax {
			backoff *= 2
			if backoff > watchBackoffMax {
				backoff = watchBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// watchOnce runs one watcher lifetime and returns when the watcher
// breaks. attached reports whether the watch on the config directory
// was ever established.
func (m *Manager) watchOnce(ctx context.Context, onChange func()) (attached bool, err error) {
	dir := filepath.Dir(m.path)
	base := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("watching config", logx.String("dir", dir), logx.String("file", base))

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event channel closed")
			}
			// Editors replace the file via rename, so any op on the
			// right basename counts as a change.
			if strings.EqualFold(filepath.Base(ev.Name), base) {
				onChange()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error channel closed")
			}
			if werr == nil {
				continue
			}
			msg := strings.ToLower(werr.Error())
			if strings.Contains(msg, "overflow") {
				// Events were missed. Reload once rather than trusting
				// the stream.
				m.log.Warn("config watch overflow", logx.Any("err", werr))
				onChange()
				continue
			}
			if strings.Contains(msg, "closed") {
				return true, werr
			}
			m.log.Warn("config watch error", logx.Any("err", werr))
		}
	}
}
