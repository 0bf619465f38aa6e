// Package session wires the traversal, classification, and accounting
// components into one unit of per-invocation state. Nothing here is global;
// each Session owns its caches and limiters outright.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/temirov/promptmap/internal/accountant"
	"github.com/temirov/promptmap/internal/classify"
	"github.com/temirov/promptmap/internal/collect"
	"github.com/temirov/promptmap/internal/filemap"
	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/ignore"
	"github.com/temirov/promptmap/internal/limiter"
	"github.com/temirov/promptmap/internal/tokenizer"
	"github.com/temirov/promptmap/internal/utils"
)

// Limits bounds a session's resource usage.
type Limits struct {
	MaxFiles              int
	PreviewByteLimit      int64
	CacheCapacity         int
	FilesystemConcurrency int
	TokenizeConcurrency   int
}

// DefaultLimits returns the limits used when configuration supplies none.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:              2000,
		PreviewByteLimit:      512 * 1024,
		CacheCapacity:         5000,
		FilesystemConcurrency: 24,
		TokenizeConcurrency:   8,
	}
}

func (limits Limits) normalized() Limits {
	defaults := DefaultLimits()
	if limits.MaxFiles < 1 {
		limits.MaxFiles = defaults.MaxFiles
	}
	if limits.PreviewByteLimit < 1 {
		limits.PreviewByteLimit = defaults.PreviewByteLimit
	}
	if limits.CacheCapacity < 1 {
		limits.CacheCapacity = defaults.CacheCapacity
	}
	if limits.FilesystemConcurrency < 1 {
		limits.FilesystemConcurrency = defaults.FilesystemConcurrency
	}
	if limits.TokenizeConcurrency < 1 {
		limits.TokenizeConcurrency = defaults.TokenizeConcurrency
	}
	return limits
}

// Session owns every cache and limiter for one sequence of operations over a
// workspace. Discarding the Session discards all cached state with it.
type Session struct {
	fileSystem  fsys.FileSystem
	logger      *zap.Logger
	limits      Limits
	ignoreRules *ignore.Engine
	collector   *collect.Collector
	classifier  *classify.Classifier
	accountant  *accountant.Accountant
	model       string
}

// New constructs a Session. An empty model selects the default model; an
// unknown model falls back to the default encoding inside the tokenizer.
func New(fileSystem fsys.FileSystem, logger *zap.Logger, limits Limits, model string) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	limits = limits.normalized()

	tokenCounter, resolvedModel, counterError := tokenizer.NewCounter(model)
	if counterError != nil {
		return nil, counterError
	}
	return NewWithCounter(fileSystem, logger, limits, tokenCounter, resolvedModel), nil
}

// NewWithCounter constructs a Session around an already-built token counter.
func NewWithCounter(fileSystem fsys.FileSystem, logger *zap.Logger, limits Limits, tokenCounter tokenizer.Counter, model string) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	limits = limits.normalized()

	filesystemLimiter := limiter.New(limits.FilesystemConcurrency)
	tokenizeLimiter := limiter.New(limits.TokenizeConcurrency)
	classifier := classify.New(fileSystem, logger, limits.CacheCapacity)

	return &Session{
		fileSystem:  fileSystem,
		logger:      logger,
		limits:      limits,
		ignoreRules: ignore.NewEngine(fileSystem, logger, utils.IgnoreFileName),
		collector:   collect.New(fileSystem, filesystemLimiter, logger),
		classifier:  classifier,
		accountant: accountant.New(
			fileSystem,
			classifier,
			tokenCounter,
			tokenizeLimiter,
			limits.CacheCapacity,
			limits.PreviewByteLimit,
			logger,
		),
		model: model,
	}
}

// Model reports the tokenizer model the session resolved to.
func (session *Session) Model() string { return session.model }

// Limits reports the session's effective limits.
func (session *Session) Limits() Limits { return session.limits }

// IsBinary reports whether a file looks binary, using the session's verdict
// cache.
func (session *Session) IsBinary(filePath string) bool {
	return session.classifier.IsBinary(filePath)
}

// CollectFiles walks the given roots and returns the deduplicated file paths
// beneath them, honoring each root's ignore rules and the session file cap.
// Roots sharing one call also share one cap.
func (session *Session) CollectFiles(ctx context.Context, rootPaths []string, useIgnoreRules bool) []string {
	roots := make([]collect.Root, 0, len(rootPaths))
	for _, rootPath := range rootPaths {
		roots = append(roots, collect.Root{
			Path:    rootPath,
			Matcher: session.matcherFor(rootPath, useIgnoreRules),
		})
	}
	return session.collector.CollectRoots(ctx, roots, session.limits.MaxFiles, nil)
}

// FileMap collects files beneath the roots and renders them as a <file_map>
// block. A nil selected set marks every file selected.
func (session *Session) FileMap(ctx context.Context, rootPaths []string, useIgnoreRules bool, selectedPaths map[string]bool) string {
	// One counter across all roots keeps the file cap global to the call.
	sharedCounter := collect.NewCounter()
	rootNodes := make([]*filemap.TreeNode, 0, len(rootPaths))
	for _, rootPath := range rootPaths {
		matcher := session.matcherFor(rootPath, useIgnoreRules)
		collected := session.collector.CollectRoots(ctx, []collect.Root{{Path: rootPath, Matcher: matcher}}, session.limits.MaxFiles, sharedCounter)
		rootNodes = append(rootNodes, filemap.BuildTree(collected, rootPath, selectedPaths))
	}
	return filemap.RenderMultiRoot(rootNodes)
}

// CountTokens totals token counts across the given files through the
// session's token cache.
func (session *Session) CountTokens(ctx context.Context, filePaths []string) int {
	return session.accountant.CountTokens(ctx, filePaths)
}

// CountText tokenizes an ad-hoc string, bypassing the cache.
func (session *Session) CountText(text string) int {
	return session.accountant.CountText(text)
}

func (session *Session) matcherFor(rootPath string, useIgnoreRules bool) *ignore.Matcher {
	if !useIgnoreRules {
		return session.ignoreRules.DefaultMatcher()
	}
	return session.ignoreRules.MatcherFor(rootPath)
}
