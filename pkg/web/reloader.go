package web

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 50 * time.Millisecond

// reloader re-parses the template set when a file under dir matching
// pattern changes. Bursts of events collapse into one reload.
type reloader struct {
	*worker.BaseWorker
	dir       string
	pattern   string
	templates *templateSet
	logger    *slog.Logger
	delay     time.Duration
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
}

func newReloader(dir string, templates *templateSet, logger *slog.Logger) *reloader {
	return &reloader{
		BaseWorker: worker.NewBaseWorker("template-reloader"),
		dir:        dir,
		pattern:    watchGlob,
		templates:  templates,
		logger:     logger,
		delay:      reloadDelay,
	}
}

func (r *reloader) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := r.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("reloader already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := addDirs(watcher, r.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	r.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.SetStatus(worker.StatusRunning)
	return r.StartFunc(runCtx, r.run)
}

func (r *reloader) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.StopRequested = true
		r.cancel()
	}
	return r.BaseWorker.Stop(ctx)
}

func (r *reloader) State() worker.State {
	return r.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"dir":               r.dir,
		}
	})
}

// addDirs watches root and every directory below it.
func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (r *reloader) matches(name string) bool {
	rel, err := filepath.Rel(r.dir, name)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(r.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (r *reloader) reload() {
	if err := r.templates.load(); err != nil {
		r.logger.Error("template reload failed, keeping previous templates", "error", err)
		return
	}
	r.logger.Info("templates reloaded", "dir", r.dir)
}

func (r *reloader) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("reloader panic: %v", recovered)
			if r.logger.Enabled(ctx, slog.LevelDebug) {
				r.logger.Error("reloader panic", "error", err, "stack", string(debug.Stack()))
			} else {
				r.logger.Error("reloader panic", "error", err)
			}
		}
	}()
	defer r.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				if r.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addDirs(r.watcher, event.Name)
				}
			}
			if !r.matches(event.Name) {
				continue
			}
			r.logger.Debug("template changed", "name", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(r.delay)
			} else {
				timer.Reset(r.delay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			r.reload()

		case wErr, ok := <-r.watcher.Errors:
			if !ok {
				if r.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			r.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

// superviseReloader runs a reloader for dir under a one-for-one supervisor
// that restarts it when the watcher fails. The returned function stops it.
func superviseReloader(ctx context.Context, dir string, templates *templateSet, logger *slog.Logger) (stop func(context.Context) error, err error) {
	spec := supervisor.Spec{
		Name: "template-reloader",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newReloader(dir, templates, logger), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     5,
			MaxDuration:     5 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("templates", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		return nil, fmt.Errorf("start template reloader: %w", err)
	}
	return sup.Stop, nil
}
