package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// DefaultDebounceDelay is the quiet period after the last file event
// before a reload.
const DefaultDebounceDelay = 100 * time.Millisecond

// ConfigCallback receives every configuration that loaded and validated.
type ConfigCallback func(*GatewayConfig)

// ErrorCallback receives reload and watch failures.
type ErrorCallback func(error)

// Watcher reloads the gateway configuration file when it changes. A file
// that fails to parse or validate is reported and the previous
// configuration stays current. Writes that leave the content unchanged do
// not trigger the callback.
type Watcher struct {
	path     string
	fs       *fsnotify.Watcher
	onChange ConfigCallback
	onError  ErrorCallback
	logger   observability.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *GatewayConfig
	sum     [sha256.Size]byte
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the quiet period before a reload.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if delay > 0 {
			w.debounce = delay
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithErrorCallback sets the callback for reload failures.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.onError = callback
	}
}

// NewWatcher creates a watcher for the file at path. Nothing is read until
// Start.
func NewWatcher(path string, onChange ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:     abs,
		fs:       fs,
		onChange: onChange,
		logger:   observability.NopLogger(),
		debounce: DefaultDebounceDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start loads the file and watches its directory until ctx is cancelled or
// Stop is called. The directory is watched so that editors which replace
// the file keep triggering reloads.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return nil
	}

	cfg, sum, err := w.read()
	if err != nil {
		return err
	}
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.current, w.sum = cfg, sum

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Info("watching configuration file", observability.String("path", w.path))
	return nil
}

// Stop ends watching and releases the file watcher. It is safe to call
// without Start and more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return w.fs.Close()
}

// Current returns the configuration most recently loaded.
func (w *Watcher) Current() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads the file now and applies it when valid, even if its
// content did not change.
func (w *Watcher) Reload() error {
	cfg, sum, err := w.read()
	if err != nil {
		return err
	}
	w.apply(cfg, sum)
	return nil
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("configuration watcher stopped")
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reloadIfChanged()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(fmt.Errorf("configuration watcher: %w", err))
		}
	}
}

func (w *Watcher) reloadIfChanged() {
	cfg, sum, err := w.read()
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.RLock()
	unchanged := sum == w.sum
	w.mu.RUnlock()
	if unchanged {
		return
	}

	w.apply(cfg, sum)
	w.logger.Info("configuration file reloaded", observability.String("path", w.path))
}

func (w *Watcher) apply(cfg *GatewayConfig, sum [sha256.Size]byte) {
	w.mu.Lock()
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) fail(err error) {
	w.logger.Warn("configuration reload rejected", observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

// read loads and validates the file and returns its content hash.
func (w *Watcher) read() (*GatewayConfig, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, fmt.Errorf("failed to read config file %s: %w", w.path, err)
	}

	cfg, err := LoadConfigFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
