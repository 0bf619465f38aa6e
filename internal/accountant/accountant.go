// Package accountant computes per-file and aggregate token costs, keeping
// counts coherent with the filesystem through an (mtime,size)-keyed cache.
package accountant

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/promptmap/internal/cache"
	"github.com/temirov/promptmap/internal/classify"
	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/limiter"
	"github.com/temirov/promptmap/internal/tokenizer"
	"github.com/temirov/promptmap/internal/utils"
)

// Accountant sums token counts over file batches. Every failure degrades to
// a zero contribution for the affected file; the batch itself never fails.
type Accountant struct {
	fileSystem       fsys.FileSystem
	classifier       *classify.Classifier
	counter          tokenizer.Counter
	tokenizeLimiter  *limiter.Limiter
	tokenCounts      *cache.Bounded[int]
	previewByteLimit int64
	logger           *zap.Logger
}

// New constructs an Accountant. Files larger than previewByteLimit are never
// read or tokenized; their contribution is zero.
func New(
	fileSystem fsys.FileSystem,
	classifier *classify.Classifier,
	counter tokenizer.Counter,
	tokenizeLimiter *limiter.Limiter,
	cacheCapacity int,
	previewByteLimit int64,
	logger *zap.Logger,
) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accountant{
		fileSystem:       fileSystem,
		classifier:       classifier,
		counter:          counter,
		tokenizeLimiter:  tokenizeLimiter,
		tokenCounts:      cache.NewBounded[int](cacheCapacity),
		previewByteLimit: previewByteLimit,
		logger:           logger,
	}
}

// CountTokens returns the total token count across paths. Per-file work runs
// in parallel, bounded by the tokenize limiter; a signalled context makes
// remaining files contribute zero without aborting the batch.
func (accountant *Accountant) CountTokens(ctx context.Context, paths []string) int {
	contributions := make([]int, len(paths))

	group := new(errgroup.Group)
	for pathIndex, filePath := range paths {
		pathIndex, filePath := pathIndex, filePath
		group.Go(func() error {
			// Limiter errors only occur on cancellation, which is a zero
			// contribution, not a failure.
			_ = accountant.tokenizeLimiter.Do(ctx, func() error {
				contributions[pathIndex] = accountant.countFile(ctx, filePath)
				return nil
			})
			return nil
		})
	}
	_ = group.Wait()

	total := 0
	for _, contribution := range contributions {
		total += contribution
	}
	return total
}

// CountText tokenizes an ad-hoc string without touching the cache.
func (accountant *Accountant) CountText(text string) int {
	tokens, countError := accountant.counter.CountString(text)
	if countError != nil {
		accountant.logger.Warn("failed to tokenize text", zap.Error(countError))
		return 0
	}
	return tokens
}

func (accountant *Accountant) countFile(ctx context.Context, filePath string) int {
	if ctx.Err() != nil {
		return 0
	}

	fileInfo, statError := accountant.fileSystem.Stat(filePath)
	if statError != nil || fileInfo.Kind != fsys.KindFile {
		if statError != nil {
			accountant.logger.Debug("token count skipped, stat failed",
				zap.String("path", filePath), zap.Error(statError))
		}
		return 0
	}
	if fileInfo.Size > accountant.previewByteLimit {
		accountant.logger.Debug("token count skipped, file exceeds preview limit",
			zap.String("path", filePath),
			zap.String("size", utils.FormatFileSize(fileInfo.Size)))
		return 0
	}

	metadata := cache.Metadata{ModTime: fileInfo.ModTime, Size: fileInfo.Size, TrackSize: true}
	if cachedCount, cacheHit := accountant.tokenCounts.Get(filePath, metadata); cacheHit {
		return cachedCount
	}

	if accountant.classifier.IsBinary(filePath) {
		return 0
	}

	fileContent, readError := accountant.fileSystem.ReadFile(filePath)
	if readError != nil {
		accountant.logger.Debug("token count skipped, read failed",
			zap.String("path", filePath), zap.Error(readError))
		return 0
	}

	tokens, countError := accountant.counter.CountString(string(fileContent))
	if countError != nil {
		accountant.logger.Warn("failed to tokenize file",
			zap.String("path", filePath), zap.Error(countError))
		return 0
	}

	accountant.tokenCounts.Put(filePath, tokens, metadata)
	return tokens
}
