// Package classify detects binary content by inspecting a fixed-size file
// prefix, with verdicts cached against the file's modification time.
package classify

import (
	"go.uber.org/zap"

	"github.com/temirov/promptmap/internal/cache"
	"github.com/temirov/promptmap/internal/fsys"
)

// sniffLength is the number of leading bytes inspected for the binary check.
const sniffLength = 512

// Classifier answers binary/text questions about files. Verdicts are cached
// per path, keyed on modification time; a read failure fails safe to binary
// so the file is excluded from text processing.
type Classifier struct {
	fileSystem fsys.FileSystem
	logger     *zap.Logger
	verdicts   *cache.Bounded[bool]
}

// New constructs a Classifier whose verdict cache holds cacheCapacity entries.
func New(fileSystem fsys.FileSystem, logger *zap.Logger, cacheCapacity int) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		fileSystem: fileSystem,
		logger:     logger,
		verdicts:   cache.NewBounded[bool](cacheCapacity),
	}
}

// IsBinary reports whether the file at path appears to contain binary data.
// A failed stat skips the cache and falls through to the content check; a
// failed content read classifies as binary.
func (classifier *Classifier) IsBinary(path string) bool {
	fileInfo, statError := classifier.fileSystem.Stat(path)
	statValid := statError == nil && fileInfo.Kind == fsys.KindFile
	metadata := cache.Metadata{ModTime: fileInfo.ModTime}

	if statValid {
		if verdict, cacheHit := classifier.verdicts.Get(path, metadata); cacheHit {
			return verdict
		}
	}

	prefix, readError := classifier.fileSystem.ReadPrefix(path, sniffLength)
	if readError != nil {
		classifier.logger.Warn("binary check read failed, classifying as binary",
			zap.String("path", path), zap.Error(readError))
		if statValid {
			classifier.verdicts.Put(path, true, metadata)
		}
		return true
	}

	verdict := ContainsBinaryData(prefix)
	if statValid {
		classifier.verdicts.Put(path, verdict, metadata)
	}
	return verdict
}

// ContainsBinaryData reports whether the provided prefix bytes appear to be
// binary content. Any zero byte marks the content binary.
func ContainsBinaryData(prefix []byte) bool {
	for _, byteValue := range prefix {
		if byteValue == 0 {
			return true
		}
	}
	return false
}
