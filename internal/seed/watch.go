package seed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a fixture file whenever it changes. The directory is
// watched rather than the file so editors that save by rename are noticed.
type Watcher struct {
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("fixture path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: abs, logger: logger}, nil
}

// Watch calls onChange with the freshly parsed fixture after each write.
// Fixtures that fail to parse are logged and skipped. Watching stops when
// ctx is done or Close is called.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Fixture)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	w.logger.Info("watching seed fixture", slog.String("path", w.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("seed watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				fixture, err := Load(w.path)
				if err != nil {
					w.logger.Error("failed to reload seed fixture",
						slog.String("error", err.Error()),
						slog.String("path", w.path))
					continue
				}
				w.logger.Info("seed fixture changed", slog.String("path", w.path))
				onChange(fixture)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("seed watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
