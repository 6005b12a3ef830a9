// Package watch reloads rule-sets of a disk repo when their files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/repo"
)

const DefaultDebounce = 100 * time.Millisecond

var ErrRunning = errors.New("watcher already running")

// Watcher emits a reload command for a rule-set once its file has been
// quiet for the debounce interval, so a burst of events produces one command
// per rule-set.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	pending map[string]*time.Timer
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

func NewWatcher(dir string, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		watcher:  fw,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch sends reload commands until ctx is done. It blocks.
func (w *Watcher) Watch(ctx context.Context, commands chan<- *rules.Command) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	w.running = true
	w.mu.Unlock()

	defer w.stop()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.dir, err)
	}

	w.logger.Info("rules watcher started", "dir", w.dir, "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			name, ok := repo.RuleSetName(event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("rules file event", "path", event.Name, "op", event.Op.String())
			w.trigger(ctx, name, commands)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("rules watcher error", "err", err)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context, name string, commands chan<- *rules.Command) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[name]; ok {
		t.Stop()
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		w.logger.Info("triggering rules reload", "ruleset", name)
		select {
		case commands <- rules.NewCommand(rules.CmdReload, name):
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.running = false
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
