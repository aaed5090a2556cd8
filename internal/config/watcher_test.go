package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/ioanna/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
memory:
  scoring:
    threshold: 0.6
`

const watcherUpdatedYAML = `
server:
  log_level: debug
memory:
  scoring:
    threshold: 0.8
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	// Explicit mtimes so coarse filesystem clocks cannot hide a change.
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

type reloadLog struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
}

func (l *reloadLog) record(_, _ *config.Config, d config.ConfigDiff) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diffs = append(l.diffs, d)
}

func (l *reloadLog) all() []config.ConfigDiff {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]config.ConfigDiff(nil), l.diffs...)
}

func newWatcher(t *testing.T, content string) (*config.Watcher, string, *reloadLog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ioanna.yaml")
	writeFile(t, path, content, time.Now().Add(-time.Hour))
	log := &reloadLog{}
	w, err := config.NewWatcher(path, log.record, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, log
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _, _ := newWatcher(t, watcherValidYAML)
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log level = %q, want info", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ioanna.yaml")
	writeFile(t, path, watcherInvalidYAML, time.Now())
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected an error for an invalid initial config")
	}
}

func TestWatcher_CheckReloads(t *testing.T) {
	t.Parallel()

	w, path, log := newWatcher(t, watcherValidYAML)
	writeFile(t, path, watcherUpdatedYAML, time.Now())

	if !w.Check() {
		t.Fatal("Check = false, want a reload")
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("log level = %q, want debug", got)
	}
	diffs := log.all()
	if len(diffs) != 1 {
		t.Fatalf("reloads = %d, want 1", len(diffs))
	}
	d := diffs[0]
	if !d.LogLevelChanged || !d.ScoringChanged || d.NewScoring.Threshold != 0.8 {
		t.Errorf("diff = %+v", d)
	}
	if d.RestartRequired {
		t.Errorf("RestartRequired = true, sections %v", d.RestartSections)
	}
}

func TestWatcher_InvalidEditKeepsConfig(t *testing.T) {
	t.Parallel()

	w, path, log := newWatcher(t, watcherValidYAML)
	writeFile(t, path, watcherInvalidYAML, time.Now())

	if w.Check() {
		t.Fatal("Check = true for an invalid file")
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log level = %q, want info to be kept", got)
	}
	if n := len(log.all()); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

func TestWatcher_TouchWithoutChange(t *testing.T) {
	t.Parallel()

	w, path, log := newWatcher(t, watcherValidYAML)
	writeFile(t, path, watcherValidYAML, time.Now())

	if w.Check() {
		t.Fatal("Check = true for identical content")
	}
	if n := len(log.all()); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()

	w, path, log := newWatcher(t, watcherValidYAML)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, watcherUpdatedYAML, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for len(log.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a reload")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
