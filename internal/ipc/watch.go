package ipc

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the polling period when fsnotify is not usable.
	DefaultPollInterval = 1 * time.Second

	// settleDelay lets a writer finish before the file is read.
	settleDelay = 50 * time.Millisecond
)

// CommandHandler receives each command read from the channel.
type CommandHandler func(cmd Command)

// CommandWatcher delivers commands written to the command file.
type CommandWatcher struct {
	dir          string
	handler      CommandHandler
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewCommandWatcher creates a watcher for the command file under dir.
func NewCommandWatcher(dir string, handler CommandHandler, logger *zap.Logger) *CommandWatcher {
	return &CommandWatcher{
		dir:          dir,
		handler:      handler,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval overrides the polling period (for testing).
func (w *CommandWatcher) WithPollInterval(d time.Duration) *CommandWatcher {
	w.pollInterval = d
	return w
}

// Run watches until ctx is done. It prefers fsnotify and keeps a polling
// ticker as a backstop; without fsnotify it only polls.
func (w *CommandWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify not available, falling back to polling", zap.Error(err))
		return w.poll(ctx)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Warn("failed to close command watcher", zap.Error(err))
		}
	}()

	if err := watcher.Add(w.dir); err != nil {
		w.logger.Warn("failed to watch command directory, falling back to polling", zap.Error(err))
		return w.poll(ctx)
	}

	w.logger.Info("command watcher started", zap.String("dir", w.dir))

	cmdPath := CommandPath(w.dir)
	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()

	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				w.logger.Info("fsnotify watcher closed, switching to polling")
				return w.poll(ctx)
			}
			if event.Name == cmdPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				w.consume()
				lastCheck = time.Now()
			}

		case <-pollTicker.C:
			if w.modifiedSince(lastCheck) {
				w.consume()
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				w.logger.Info("fsnotify error channel closed, switching to polling")
				return w.poll(ctx)
			}
			w.logger.Warn("command watcher error", zap.Error(err))
		}
	}
}

// poll is the pure polling fallback.
func (w *CommandWatcher) poll(ctx context.Context) error {
	w.logger.Info("command watcher started (polling)",
		zap.String("dir", w.dir),
		zap.Duration("interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	lastCheck := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.modifiedSince(lastCheck) {
				w.consume()
				lastCheck = time.Now()
			}
		}
	}
}

func (w *CommandWatcher) modifiedSince(t time.Time) bool {
	info, err := os.Stat(CommandPath(w.dir))
	if err != nil {
		return false // File doesn't exist yet
	}
	return info.ModTime().After(t) && info.Size() > 0
}

func (w *CommandWatcher) consume() {
	time.Sleep(settleDelay)

	cmd, err := ReadCommand(w.dir)
	if err != nil {
		w.logger.Warn("failed to read command", zap.Error(err))
		return
	}
	if cmd == "" {
		return
	}

	w.logger.Info("received command", zap.String("command", string(cmd)))
	w.handler(cmd)
}
