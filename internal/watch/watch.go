// Package watch re-runs a collection callback when watched directories
// change, coalescing event bursts and cancelling superseded runs.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period required before a change callback runs.
const DefaultDebounce = 300 * time.Millisecond

// Runner coalesces change notifications: a callback runs only after the
// debounce period passes without further notifications, and starting a new
// run cancels the context of the previous one.
type Runner struct {
	debounce time.Duration
	onChange func(ctx context.Context, sequence uint64)
	events   chan struct{}
	inFlight sync.WaitGroup
}

// NewRunner constructs a Runner. A non-positive debounce falls back to
// DefaultDebounce.
func NewRunner(debounce time.Duration, onChange func(ctx context.Context, sequence uint64)) *Runner {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Runner{
		debounce: debounce,
		onChange: onChange,
		events:   make(chan struct{}, 1),
	}
}

// Notify records that something changed. Never blocks; notifications during
// an unexpired debounce window coalesce into one run.
func (runner *Runner) Notify() {
	select {
	case runner.events <- struct{}{}:
	default:
	}
}

// Run processes notifications until the context is cancelled. Each fired
// debounce window cancels the previous callback's context before invoking
// the callback again with the next sequence number.
func (runner *Runner) Run(ctx context.Context) error {
	var timer *time.Timer
	var timerFired <-chan time.Time
	var cancelPrevious context.CancelFunc
	var sequence uint64

	defer func() {
		if cancelPrevious != nil {
			cancelPrevious()
		}
		runner.inFlight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runner.events:
			if timer == nil {
				timer = time.NewTimer(runner.debounce)
				timerFired = timer.C
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(runner.debounce)
		case <-timerFired:
			timer = nil
			timerFired = nil

			if cancelPrevious != nil {
				cancelPrevious()
			}
			runContext, cancel := context.WithCancel(ctx)
			cancelPrevious = cancel
			sequence++

			runner.inFlight.Add(1)
			go func(runContext context.Context, runSequence uint64) {
				defer runner.inFlight.Done()
				runner.onChange(runContext, runSequence)
			}(runContext, sequence)
		}
	}
}

// Watcher feeds filesystem events from a set of root directories into a
// Runner. Directories created while watching are added to the watch set.
type Watcher struct {
	fileWatcher *fsnotify.Watcher
	runner      *Runner
	logger      *zap.Logger
}

// NewWatcher constructs a Watcher over the given runner.
func NewWatcher(runner *Runner, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fileWatcher, watcherError := fsnotify.NewWatcher()
	if watcherError != nil {
		return nil, watcherError
	}
	return &Watcher{fileWatcher: fileWatcher, runner: runner, logger: logger}, nil
}

// AddRoot registers a directory tree for watching. Subdirectory registration
// failures are logged and skipped so one unreadable directory does not stop
// the watch.
func (watcher *Watcher) AddRoot(rootPath string) error {
	return filepath.WalkDir(rootPath, func(entryPath string, entry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if entryPath == rootPath {
				return walkError
			}
			watcher.logger.Warn("skipping unreadable directory",
				zap.String("path", entryPath), zap.Error(walkError))
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if addError := watcher.fileWatcher.Add(entryPath); addError != nil {
			if entryPath == rootPath {
				return addError
			}
			watcher.logger.Warn("failed to watch directory",
				zap.String("path", entryPath), zap.Error(addError))
		}
		return nil
	})
}

// Run pumps filesystem events into the runner until the context is
// cancelled.
func (watcher *Watcher) Run(ctx context.Context) error {
	defer watcher.fileWatcher.Close()

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- watcher.runner.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return <-runnerDone
		case event, open := <-watcher.fileWatcher.Events:
			if !open {
				return <-runnerDone
			}
			if event.Has(fsnotify.Create) {
				// New directories need their own watch registration.
				if addError := watcher.fileWatcher.Add(event.Name); addError != nil {
					watcher.logger.Debug("could not watch created path",
						zap.String("path", event.Name), zap.Error(addError))
				}
			}
			watcher.runner.Notify()
		case watchError, open := <-watcher.fileWatcher.Errors:
			if !open {
				return <-runnerDone
			}
			watcher.logger.Warn("filesystem watch error", zap.Error(watchError))
		}
	}
}
