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

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives the config in effect, the newly loaded one and their
// difference.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// Watcher polls a config file and hands valid edits to a [ChangeFunc].
// Invalid edits are logged and ignored so the running config stays in
// effect. Edits that leave the parsed config unchanged, such as comment or
// formatting changes, do not trigger the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	mu      sync.Mutex
	current *Config
	seen    fileState
}

// fileState identifies a version of the config file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and returns a watcher for it. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, st
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. It always returns nil so it can run in an
// errgroup next to the servers it reconfigures.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config watcher: keeping current config", "path", w.path, "err", err)
			}
		}
	}
}

// Check looks at the file once. It reports whether a changed config was
// applied, and returns an error when the file cannot be read or no longer
// validates.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, st, err := readConfigFile(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	d := Diff(old, cfg)
	w.seen = st
	w.current = cfg
	w.mu.Unlock()

	if !d.Changed() {
		slog.Debug("config watcher: file changed without effect", "path", w.path)
		return false, nil
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level", d.LogLevelChanged,
		"pipeline", d.PipelineChanged,
		"alignment", d.AlignmentChanged,
		"playback", d.PlaybackChanged,
		"restart_required", d.RestartRequired,
	)

	// Called outside the lock so the callback may use Current.
	if w.onChange != nil {
		w.onChange(old, cfg, d)
	}
	return true, nil
}

// readConfigFile parses and validates the file at path and identifies the
// version it read.
func readConfigFile(path string) (*Config, fileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
