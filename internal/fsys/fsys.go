// Package fsys defines the narrow filesystem capability surface the engine
// depends on, together with the operating-system adapter. Core packages only
// ever see this interface; platform specifics stay behind the adapter.
package fsys

import (
	"time"
)

// Kind distinguishes the two node kinds the engine cares about.
type Kind int

const (
	// KindFile identifies a regular file.
	KindFile Kind = iota
	// KindDirectory identifies a directory.
	KindDirectory
)

// FileInfo is the metadata subset the engine consumes.
type FileInfo struct {
	Kind    Kind
	ModTime time.Time
	Size    int64
}

// DirEntry is one child of a listed directory, in listing order.
type DirEntry struct {
	Name string
	Kind Kind
}

// FileSystem is the capability surface for traversal, classification and
// accounting. Every failure from this surface is caught by callers and
// degraded; none propagates past the engine.
type FileSystem interface {
	// Stat returns metadata for the node at path.
	Stat(path string) (FileInfo, error)
	// ListDirectory returns the children of the directory at path in the
	// order the platform provides them.
	ListDirectory(path string) ([]DirEntry, error)
	// ReadFile returns the full content of the file at path.
	ReadFile(path string) ([]byte, error)
	// ReadPrefix returns at most maxBytes leading bytes of the file at path.
	ReadPrefix(path string, maxBytes int) ([]byte, error)
	// Resolve returns the canonical path of the node at path with any
	// symbolic links evaluated. Two paths naming the same directory resolve
	// to the same string.
	Resolve(path string) (string, error)
}
