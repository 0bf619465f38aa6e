package fsys

import (
	"io"
	"os"
	"path/filepath"
)

// OSFileSystem adapts the host operating system to the FileSystem surface.
type OSFileSystem struct{}

// NewOSFileSystem constructs the operating-system adapter.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// Stat implements FileSystem using os.Stat.
func (adapter *OSFileSystem) Stat(path string) (FileInfo, error) {
	fileInformation, statError := os.Stat(path)
	if statError != nil {
		return FileInfo{}, statError
	}
	nodeKind := KindFile
	if fileInformation.IsDir() {
		nodeKind = KindDirectory
	}
	return FileInfo{
		Kind:    nodeKind,
		ModTime: fileInformation.ModTime(),
		Size:    fileInformation.Size(),
	}, nil
}

// ListDirectory implements FileSystem using os.ReadDir.
func (adapter *OSFileSystem) ListDirectory(path string) ([]DirEntry, error) {
	directoryEntries, readError := os.ReadDir(path)
	if readError != nil {
		return nil, readError
	}
	entries := make([]DirEntry, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		nodeKind := KindFile
		if directoryEntry.IsDir() {
			nodeKind = KindDirectory
		}
		entries = append(entries, DirEntry{Name: directoryEntry.Name(), Kind: nodeKind})
	}
	return entries, nil
}

// ReadFile implements FileSystem using os.ReadFile.
func (adapter *OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Resolve implements FileSystem using filepath.EvalSymlinks.
func (adapter *OSFileSystem) Resolve(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// ReadPrefix implements FileSystem with a streaming read truncated to maxBytes.
func (adapter *OSFileSystem) ReadPrefix(path string, maxBytes int) ([]byte, error) {
	fileHandle, openError := os.Open(path)
	if openError != nil {
		return nil, openError
	}
	defer fileHandle.Close()

	buffer := make([]byte, maxBytes)
	bytesRead, readError := io.ReadFull(fileHandle, buffer)
	if readError != nil && readError != io.EOF && readError != io.ErrUnexpectedEOF {
		return nil, readError
	}
	return buffer[:bytesRead], nil
}

var _ FileSystem = (*OSFileSystem)(nil)
