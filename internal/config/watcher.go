package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc is called with the previous and the new config after a
// successful reload, together with the hot-reloadable differences.
type ReloadFunc func(old, new *Config, d ConfigDiff)

// Watcher polls a config file and reports content changes that parse into
// another valid configuration. Invalid edits are logged and ignored, so the
// running agent keeps its last good config.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and returns a Watcher for it. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash, w.lastMtime = cfg, hash, mtime
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check reloads the file if it changed and reports whether a new config was
// applied. It is called by Run on every tick.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return false
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		slog.Warn("config: watcher: keeping previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	w.lastMtime = mtime
	if hash == w.lastHash {
		// Touched without a content change.
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current, w.lastHash = cfg, hash
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config: watcher: configuration reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged, "scoring_changed", d.ScoringChanged,
		"restart_required", d.RestartRequired)

	// Outside the lock so the callback may call Current.
	if w.onReload != nil {
		w.onReload(old, cfg, d)
	}
	return true
}

// load reads, hashes, parses and validates the file.
func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
