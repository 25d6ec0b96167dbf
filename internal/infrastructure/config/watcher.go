package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last write before reloading.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads a config file into a Store when it changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	path     string
	debounce time.Duration
	logger   *logging.Logger
}

// NewWatcher watches path's directory, so editors that replace the file by
// rename are picked up too.
func NewWatcher(store *Store, path string, logger *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		watcher:  fw,
		store:    store,
		path:     abs,
		debounce: DefaultDebounce,
		logger:   logging.OrNop(logger).Named("config"),
	}, nil
}

// Run blocks until ctx is cancelled, reloading on every settled change.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// reload keeps the current configuration when the new file is invalid.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = w.store.Set(cfg)
	}
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
}
