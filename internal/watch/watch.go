// Package watch reloads the grid when its configuration file changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pdrpinto/gridpath"
	"github.com/pdrpinto/gridpath/internal/config"
	"github.com/pdrpinto/gridpath/internal/world"
)

// DefaultDebounce is how long a file must stay quiet before a change is
// reported.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a fixed set of files. Their directories are
// watched so that editors replacing a file by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration

	Events chan string
	Errors chan error

	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewWatcher(debounce time.Duration, files ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher := &Watcher{
		watcher:  w,
		files:    watched,
		debounce: debounce,
		Events:   make(chan string, 16),
		Errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops the watcher. Events and Errors are closed once it has stopped.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
	})
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.Errors)
	defer close(w.Events)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !w.files[name] {
				continue
			}
			pending[name] = true
			timer.Reset(w.debounce)
		case <-timer.C:
			for name := range pending {
				select {
				case w.Events <- name:
				case <-w.closeCh:
					return
				}
			}
			clear(pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		case <-w.closeCh:
			return
		}
	}
}

// GridBuilder turns a loaded configuration into a grid build configuration.
type GridBuilder func(*config.File) (gridpath.GridConfig, error)

// WorldGrid samples the configured world geometry.
func WorldGrid(file *config.File) (gridpath.GridConfig, error) {
	w, err := world.FromConfig(file)
	if err != nil {
		return gridpath.GridConfig{}, err
	}
	return file.GridConfig(w), nil
}

// Reloader regenerates a service's grid from a configuration file.
type Reloader struct {
	Path    string
	Service *gridpath.Service
	Logger  *slog.Logger
	// Build defaults to WorldGrid.
	Build GridBuilder
}

// Reload loads the file, builds its world and waits until the new grid is
// published. On any failure the current grid stays published.
func (r *Reloader) Reload(ctx context.Context) (*gridpath.Grid, uint64, error) {
	logger := r.logger()
	file, err := config.Load(r.Path)
	if err != nil {
		logger.Error("config_reload_failed", slog.String("path", r.Path), slog.String("error", err.Error()))
		return nil, 0, err
	}
	build := r.Build
	if build == nil {
		build = WorldGrid
	}
	cfg, err := build(file)
	if err != nil {
		logger.Error("config_reload_failed", slog.String("path", r.Path), slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("watch: %w", err)
	}

	regeneration := r.Service.RegenerateGrid(ctx, cfg)
	grid, err := regeneration.Wait(ctx)
	if err != nil {
		return nil, 0, err
	}
	version := regeneration.Version()
	logger.Info("config_reloaded", slog.String("path", r.Path), slog.Uint64("version", version))
	return grid, version, nil
}

// Run reloads on every event from w until ctx ends or w is closed. Reload
// failures are logged and do not stop the loop.
func (r *Reloader) Run(ctx context.Context, w *Watcher) error {
	logger := r.logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case name, ok := <-w.Events:
			if !ok {
				return nil
			}
			logger.Debug("config_changed", slog.String("path", name))
			_, _, _ = r.Reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (r *Reloader) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
