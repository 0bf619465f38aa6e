package fsys

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFileSystem is an in-memory FileSystem adapter. It keeps listing order
// stable (insertion order per directory), allows modification times to be set
// explicitly, and counts reads so cache coherence can be verified.
type MemoryFileSystem struct {
	mutex       sync.Mutex
	files       map[string]*memoryFile
	directories map[string][]string
	failReads   map[string]bool
	readCounts  map[string]int
}

type memoryFile struct {
	content []byte
	modTime time.Time
}

// NewMemoryFileSystem constructs an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files:       make(map[string]*memoryFile),
		directories: make(map[string][]string),
		failReads:   make(map[string]bool),
		readCounts:  make(map[string]int),
	}
}

func normalize(candidate string) string {
	cleaned := path.Clean(strings.ReplaceAll(candidate, "\\", "/"))
	if cleaned != "/" {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// Resolve implements FileSystem. The in-memory tree holds no symbolic links,
// so the canonical path is the normalized path itself. Missing nodes are
// reported, matching the platform adapter.
func (memory *MemoryFileSystem) Resolve(targetPath string) (string, error) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(targetPath)
	if _, isFile := memory.files[normalized]; isFile {
		return normalized, nil
	}
	if _, isDirectory := memory.directories[normalized]; isDirectory {
		return normalized, nil
	}
	return "", &os.PathError{Op: "resolve", Path: targetPath, Err: os.ErrNotExist}
}

// WriteFile stores content at filePath, creating parent directories.
func (memory *MemoryFileSystem) WriteFile(filePath string, content []byte, modTime time.Time) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(filePath)
	memory.ensureParents(normalized)
	if _, exists := memory.files[normalized]; !exists {
		parent := path.Dir(normalized)
		memory.directories[parent] = append(memory.directories[parent], path.Base(normalized))
	}
	memory.files[normalized] = &memoryFile{content: append([]byte(nil), content...), modTime: modTime}
}

// MkdirAll records the directory at directoryPath and all parents.
func (memory *MemoryFileSystem) MkdirAll(directoryPath string) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(directoryPath)
	memory.ensureParents(normalized)
	if _, exists := memory.directories[normalized]; !exists {
		memory.directories[normalized] = nil
		parent := path.Dir(normalized)
		if parent != normalized {
			memory.directories[parent] = append(memory.directories[parent], path.Base(normalized))
		}
	}
}

func (memory *MemoryFileSystem) ensureParents(childPath string) {
	parent := path.Dir(childPath)
	if parent == childPath {
		if _, exists := memory.directories[parent]; !exists {
			memory.directories[parent] = nil
		}
		return
	}
	if _, exists := memory.directories[parent]; exists {
		return
	}
	memory.ensureParents(parent)
	memory.directories[parent] = nil
	grandparent := path.Dir(parent)
	if grandparent != parent {
		memory.directories[grandparent] = append(memory.directories[grandparent], path.Base(parent))
	}
}

// Remove deletes the file or directory at targetPath.
func (memory *MemoryFileSystem) Remove(targetPath string) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(targetPath)
	delete(memory.files, normalized)
	delete(memory.directories, normalized)
	parent := path.Dir(normalized)
	children := memory.directories[parent]
	for index, childName := range children {
		if childName == path.Base(normalized) {
			memory.directories[parent] = append(children[:index], children[index+1:]...)
			break
		}
	}
}

// SetModTime updates the stored modification time of filePath.
func (memory *MemoryFileSystem) SetModTime(filePath string, modTime time.Time) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if file, exists := memory.files[normalize(filePath)]; exists {
		file.modTime = modTime
	}
}

// FailReads makes every content read of filePath return an error.
func (memory *MemoryFileSystem) FailReads(filePath string, fail bool) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	memory.failReads[normalize(filePath)] = fail
}

// ReadCount reports how many content reads filePath has served.
func (memory *MemoryFileSystem) ReadCount(filePath string) int {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	return memory.readCounts[normalize(filePath)]
}

// Stat implements FileSystem.
func (memory *MemoryFileSystem) Stat(targetPath string) (FileInfo, error) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(targetPath)
	if file, exists := memory.files[normalized]; exists {
		return FileInfo{Kind: KindFile, ModTime: file.modTime, Size: int64(len(file.content))}, nil
	}
	if _, exists := memory.directories[normalized]; exists {
		return FileInfo{Kind: KindDirectory}, nil
	}
	return FileInfo{}, &os.PathError{Op: "stat", Path: targetPath, Err: os.ErrNotExist}
}

// ListDirectory implements FileSystem; children come back in insertion order.
func (memory *MemoryFileSystem) ListDirectory(targetPath string) ([]DirEntry, error) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(targetPath)
	children, exists := memory.directories[normalized]
	if !exists {
		return nil, &os.PathError{Op: "readdir", Path: targetPath, Err: os.ErrNotExist}
	}
	entries := make([]DirEntry, 0, len(children))
	for _, childName := range children {
		childPath := normalized + "/" + childName
		if normalized == "/" {
			childPath = "/" + childName
		}
		if _, isFile := memory.files[childPath]; isFile {
			entries = append(entries, DirEntry{Name: childName, Kind: KindFile})
			continue
		}
		entries = append(entries, DirEntry{Name: childName, Kind: KindDirectory})
	}
	return entries, nil
}

// ReadFile implements FileSystem.
func (memory *MemoryFileSystem) ReadFile(targetPath string) ([]byte, error) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	normalized := normalize(targetPath)
	file, exists := memory.files[normalized]
	if !exists {
		return nil, &os.PathError{Op: "open", Path: targetPath, Err: os.ErrNotExist}
	}
	memory.readCounts[normalized]++
	if memory.failReads[normalized] {
		return nil, fmt.Errorf("read %s: injected failure", targetPath)
	}
	return append([]byte(nil), file.content...), nil
}

// ReadPrefix implements FileSystem.
func (memory *MemoryFileSystem) ReadPrefix(targetPath string, maxBytes int) ([]byte, error) {
	content, readError := memory.ReadFile(targetPath)
	if readError != nil {
		return nil, readError
	}
	if len(content) > maxBytes {
		content = content[:maxBytes]
	}
	return content, nil
}

// AllFiles returns every stored file path, sorted; test convenience.
func (memory *MemoryFileSystem) AllFiles() []string {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	paths := make([]string, 0, len(memory.files))
	for filePath := range memory.files {
		paths = append(paths, filePath)
	}
	sort.Strings(paths)
	return paths
}

var _ FileSystem = (*MemoryFileSystem)(nil)
