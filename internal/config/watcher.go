package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and reports what changed whenever its content
// differs and still validates. An invalid edit is logged and ignored, so the
// running process keeps its last good config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(d ConfigDiff, next *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	digest  [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger overrides the default logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path once and polls it in the background. onChange
// receives the [Diff] against the previous config; it may be nil.
func NewWatcher(path string, onChange func(d ConfigDiff, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, digest, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.digest = cfg, digest

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, digest, err := w.read()
	if err != nil {
		w.log.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if digest == w.digest {
		w.mu.Unlock()
		return
	}
	prev := w.current
	w.current, w.digest = cfg, digest
	w.mu.Unlock()

	d := Diff(prev, cfg)
	w.log.Info("config: reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"feedback_changed", d.FeedbackChanged,
		"narration_changed", d.NarrationChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(d, cfg)
	}
}

// read loads and validates the file, returning its content digest.
func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
