// Package collect implements the recursive, ignore-aware, cap-bounded and
// cancellable directory walk that turns traversal roots into flat file lists.
package collect

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/ignore"
	"github.com/temirov/promptmap/internal/limiter"
	"github.com/temirov/promptmap/internal/utils"
)

// Counter is the shared collected-file count for one top-level traversal
// call. It is shared across all recursive descents and any parallel sibling
// roots of that call.
type Counter struct {
	mutex       sync.Mutex
	collected   int
	capReported bool
}

// NewCounter constructs an empty traversal counter.
func NewCounter() *Counter {
	return &Counter{}
}

// tryIncrement consumes one slot below cap, reporting whether the caller may
// emit a file. The first refusal flips capReported so the collector logs the
// soft stop exactly once per traversal call.
func (counter *Counter) tryIncrement(fileCap int) (allowed bool, firstRefusal bool) {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	if counter.collected < fileCap {
		counter.collected++
		return true, false
	}
	if !counter.capReported {
		counter.capReported = true
		return false, true
	}
	return false, false
}

// reached reports whether the counter has consumed the cap.
func (counter *Counter) reached(fileCap int) bool {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	return counter.collected >= fileCap
}

// Collected reports the number of files emitted so far.
func (counter *Counter) Collected() int {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	return counter.collected
}

// Collector walks directory trees. Leaf filesystem calls go through the
// filesystem limiter; recursive descent deliberately does not, because
// wrapping full recursive calls in a fixed-size pool deadlocks once depth
// exceeds the pool size.
type Collector struct {
	fileSystem        fsys.FileSystem
	filesystemLimiter *limiter.Limiter
	logger            *zap.Logger
}

// New constructs a Collector issuing leaf I/O through filesystemLimiter.
func New(fileSystem fsys.FileSystem, filesystemLimiter *limiter.Limiter, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fileSystem:        fileSystem,
		filesystemLimiter: filesystemLimiter,
		logger:            logger,
	}
}

// Collect walks target under root, returning absolute file paths in listing
// order. The matcher is consulted against root-relative slash-normalized
// paths; ignored directories are pruned without listing or statting their
// contents. Cancellation is cooperative: already-gathered results are kept
// and no error is ever returned to the caller.
func (collector *Collector) Collect(ctx context.Context, target string, matcher *ignore.Matcher, root string, fileCap int, counter *Counter) []string {
	if counter == nil {
		counter = NewCounter()
	}
	visitedDirectories := make(map[string]struct{})
	return collector.collect(ctx, target, matcher, root, fileCap, counter, visitedDirectories)
}

func (collector *Collector) collect(ctx context.Context, target string, matcher *ignore.Matcher, root string, fileCap int, counter *Counter, visitedDirectories map[string]struct{}) []string {
	if ctx.Err() != nil {
		return nil
	}

	relativePath := utils.RelativePathOrSelf(target, root)

	var fileInfo fsys.FileInfo
	statError := collector.filesystemLimiter.Do(ctx, func() error {
		info, innerError := collector.fileSystem.Stat(target)
		fileInfo = info
		return innerError
	})
	if statError != nil {
		if ctx.Err() == nil {
			collector.logger.Debug("skipping unreadable path", zap.String("path", target), zap.Error(statError))
		}
		return nil
	}

	if fileInfo.Kind == fsys.KindDirectory {
		return collector.collectDirectory(ctx, target, relativePath, matcher, root, fileCap, counter, visitedDirectories)
	}
	return collector.collectFile(target, relativePath, matcher, fileCap, counter)
}

func (collector *Collector) collectDirectory(ctx context.Context, target string, relativePath string, matcher *ignore.Matcher, root string, fileCap int, counter *Counter, visitedDirectories map[string]struct{}) []string {
	// The root itself is never ignore-tested; only descendants are.
	if relativePath != "." {
		if matcher != nil && matcher.Matches(relativePath+"/") {
			return nil
		}
	}

	// The visited set is keyed on the resolved path so every link into a
	// directory collapses to one key; a lexical key would treat each cycle
	// level as a new directory.
	resolvedTarget, resolveError := collector.fileSystem.Resolve(target)
	if resolveError != nil {
		resolvedTarget = filepath.Clean(target)
	}
	if _, alreadyVisited := visitedDirectories[resolvedTarget]; alreadyVisited {
		collector.logger.Debug("skipping already visited directory", zap.String("path", resolvedTarget))
		return nil
	}
	visitedDirectories[resolvedTarget] = struct{}{}

	var directoryEntries []fsys.DirEntry
	listError := collector.filesystemLimiter.Do(ctx, func() error {
		entries, innerError := collector.fileSystem.ListDirectory(target)
		directoryEntries = entries
		return innerError
	})
	if listError != nil {
		if ctx.Err() == nil {
			collector.logger.Debug("skipping unlistable directory", zap.String("path", target), zap.Error(listError))
		}
		return nil
	}

	var collected []string
	for _, directoryEntry := range directoryEntries {
		if ctx.Err() != nil {
			return collected
		}
		if counter.reached(fileCap) {
			return collected
		}
		childPath := filepath.Join(target, directoryEntry.Name)
		collected = append(collected, collector.collect(ctx, childPath, matcher, root, fileCap, counter, visitedDirectories)...)
	}
	return collected
}

func (collector *Collector) collectFile(target string, relativePath string, matcher *ignore.Matcher, fileCap int, counter *Counter) []string {
	if matcher != nil && matcher.Matches(relativePath) {
		return nil
	}
	allowed, firstRefusal := counter.tryIncrement(fileCap)
	if !allowed {
		if firstRefusal {
			collector.logger.Warn("file cap reached, stopping collection",
				zap.Int("cap", fileCap))
		}
		return nil
	}
	return []string{filepath.Clean(target)}
}

// Root pairs one traversal root with the matcher to consult for it.
type Root struct {
	Path    string
	Matcher *ignore.Matcher
}

// CollectRoots collects every root in parallel with a shared counter and
// deduplicates the concatenated results, preserving first-seen order.
func (collector *Collector) CollectRoots(ctx context.Context, roots []Root, fileCap int, counter *Counter) []string {
	if counter == nil {
		counter = NewCounter()
	}
	collectedPerRoot := make([][]string, len(roots))

	group, groupCtx := errgroup.WithContext(ctx)
	for rootIndex, rootValue := range roots {
		rootIndex, rootValue := rootIndex, rootValue
		group.Go(func() error {
			collectedPerRoot[rootIndex] = collector.Collect(groupCtx, rootValue.Path, rootValue.Matcher, rootValue.Path, fileCap, counter)
			return nil
		})
	}
	// Collect never returns an error; Wait only joins the goroutines.
	_ = group.Wait()

	var concatenated []string
	for _, rootResults := range collectedPerRoot {
		concatenated = append(concatenated, rootResults...)
	}
	return utils.DeduplicateStrings(concatenated)
}
