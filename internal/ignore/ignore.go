// Package ignore builds and caches per-root pattern matchers from an
// optional ignore file combined with built-in defaults.
package ignore

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/utils"
)

// defaultPatternLines are always part of every matcher, regardless of the
// user's ignore file.
var defaultPatternLines = []string{utils.GitDirectoryName + "/"}

type pattern struct {
	text        string
	isDirectory bool
	hasGlob     bool
}

// Matcher is a predicate over root-relative, slash-normalized candidate
// paths. Directory candidates must carry a trailing slash so directory-only
// rules apply to them.
type Matcher struct {
	patterns []pattern
}

// NewMatcher compiles the given pattern lines plus the built-in defaults.
// Blank lines and lines starting with '#' are skipped.
func NewMatcher(patternLines []string) *Matcher {
	combinedLines := make([]string, 0, len(defaultPatternLines)+len(patternLines))
	combinedLines = append(combinedLines, defaultPatternLines...)
	combinedLines = append(combinedLines, patternLines...)

	matcher := &Matcher{}
	for _, rawLine := range utils.DeduplicateStrings(combinedLines) {
		trimmedLine := strings.TrimSpace(rawLine)
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}
		normalizedLine := strings.TrimPrefix(filepath.ToSlash(trimmedLine), "/")
		isDirectory := strings.HasSuffix(normalizedLine, "/")
		text := strings.TrimSuffix(normalizedLine, "/")
		if text == "" {
			continue
		}
		matcher.patterns = append(matcher.patterns, pattern{
			text:        text,
			isDirectory: isDirectory,
			hasGlob:     strings.ContainsAny(text, "*?["),
		})
	}
	return matcher
}

// Matches reports whether the candidate path is excluded. Candidates are
// root-relative and slash-normalized; a directory candidate ends with "/".
// A directory rule "name/" matches the directory itself (rooted or nested in
// suffix position) and everything rooted beneath it; traversal prunes at the
// directory, so descendants of an ignored directory are normally never even
// tested. A file rule matches the exact rooted path or the trailing path
// segment.
func (matcher *Matcher) Matches(candidate string) bool {
	normalizedCandidate := strings.TrimPrefix(filepath.ToSlash(candidate), "/")
	if normalizedCandidate == "" || normalizedCandidate == "." {
		return false
	}
	candidateWithSlash := normalizedCandidate
	if !strings.HasSuffix(candidateWithSlash, "/") {
		candidateWithSlash += "/"
	}
	trimmedCandidate := strings.TrimSuffix(normalizedCandidate, "/")

	for _, rule := range matcher.patterns {
		if rule.isDirectory {
			if strings.HasPrefix(candidateWithSlash, rule.text+"/") {
				return true
			}
			if strings.HasSuffix(candidateWithSlash, "/"+rule.text+"/") {
				return true
			}
			continue
		}
		if rule.hasGlob {
			if matchesGlob(rule.text, trimmedCandidate) {
				return true
			}
			continue
		}
		if trimmedCandidate == rule.text {
			return true
		}
		if strings.HasSuffix(trimmedCandidate, "/"+rule.text) {
			return true
		}
	}
	return false
}

// matchesGlob evaluates a glob rule against the rooted candidate and against
// its trailing segment, mirroring the rooted-or-suffix shape of literal rules.
func matchesGlob(globPattern, trimmedCandidate string) bool {
	if matched, matchError := filepath.Match(globPattern, trimmedCandidate); matchError == nil && matched {
		return true
	}
	lastSlashIndex := strings.LastIndex(trimmedCandidate, "/")
	lastSegment := trimmedCandidate[lastSlashIndex+1:]
	if matched, matchError := filepath.Match(globPattern, lastSegment); matchError == nil && matched {
		return true
	}
	return false
}

type matcherCacheEntry struct {
	matcher       *Matcher
	ignoreFileSet bool
	modTime       time.Time
}

// Engine loads per-root matchers and keeps them coherent with the backing
// ignore file. The cache key is the root path; validity is keyed by the
// ignore file's modification time. A missing ignore file yields a cached
// default-only matcher.
type Engine struct {
	fileSystem     fsys.FileSystem
	logger         *zap.Logger
	ignoreFileName string
	mutex          sync.Mutex
	matchers       map[string]matcherCacheEntry
	defaultMatcher *Matcher
}

// NewEngine constructs an Engine reading ignoreFileName at each root.
func NewEngine(fileSystem fsys.FileSystem, logger *zap.Logger, ignoreFileName string) *Engine {
	if ignoreFileName == "" {
		ignoreFileName = utils.IgnoreFileName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fileSystem:     fileSystem,
		logger:         logger,
		ignoreFileName: ignoreFileName,
		matchers:       make(map[string]matcherCacheEntry),
		defaultMatcher: NewMatcher(nil),
	}
}

// DefaultMatcher returns the matcher holding only the built-in defaults.
// Callers pass it instead of MatcherFor's result when explicitly selected
// paths should bypass the root's ignore rules.
func (engine *Engine) DefaultMatcher() *Matcher {
	return engine.defaultMatcher
}

// MatcherFor returns the matcher for root, rebuilding it only when the
// ignore file's modification time has changed since the cached build. A stat
// failure on the ignore file is treated as absence, not an error.
func (engine *Engine) MatcherFor(root string) *Matcher {
	ignoreFilePath := filepath.Join(root, engine.ignoreFileName)
	ignoreFileInfo, statError := engine.fileSystem.Stat(ignoreFilePath)
	ignoreFilePresent := statError == nil && ignoreFileInfo.Kind == fsys.KindFile

	engine.mutex.Lock()
	cached, cacheHit := engine.matchers[root]
	engine.mutex.Unlock()

	if cacheHit {
		if !ignoreFilePresent && !cached.ignoreFileSet {
			return cached.matcher
		}
		if ignoreFilePresent && cached.ignoreFileSet && cached.modTime.Equal(ignoreFileInfo.ModTime) {
			return cached.matcher
		}
	}

	var patternLines []string
	if ignoreFilePresent {
		fileContent, readError := engine.fileSystem.ReadFile(ignoreFilePath)
		if readError != nil {
			engine.logger.Warn("failed to read ignore file",
				zap.String("path", ignoreFilePath), zap.Error(readError))
			ignoreFilePresent = false
		} else {
			patternLines = parsePatternLines(fileContent)
		}
	}

	rebuilt := matcherCacheEntry{
		matcher:       NewMatcher(patternLines),
		ignoreFileSet: ignoreFilePresent,
	}
	if ignoreFilePresent {
		rebuilt.modTime = ignoreFileInfo.ModTime
	}

	engine.mutex.Lock()
	engine.matchers[root] = rebuilt
	engine.mutex.Unlock()
	return rebuilt.matcher
}

// parsePatternLines splits ignore file content into raw pattern lines.
// Filtering of blanks and comments happens during matcher compilation.
func parsePatternLines(content []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
