// Package utils contains general helper functions used across promptmap.
package utils

import (
	"path/filepath"
	"strings"
)

// GitDirectoryName is the name of the version-control metadata directory that
// is always excluded from traversal.
const GitDirectoryName = ".git"

// IgnoreFileName is the name of the per-root ignore file.
const IgnoreFileName = ".ignore"

// GlobalConfigDirectoryName is the directory under the user's home that holds
// the global configuration file.
const GlobalConfigDirectoryName = ".promptmap"

// ConfigFileName is the configuration file name looked up both globally and
// in the working directory.
const ConfigFileName = ".promptmap.yaml"

// DeduplicateStrings removes duplicate values from a slice while preserving
// order. The first occurrence of each unique value is kept.
func DeduplicateStrings(values []string) []string {
	encounteredValues := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, exists := encounteredValues[value]; !exists {
			encounteredValues[value] = struct{}{}
			result = append(result, value)
		}
	}
	return result
}

// RelativePathOrSelf calculates the slash-normalized path from root to
// fullPath. Returns the cleaned fullPath if relative calculation fails.
// Returns "." if fullPath and root resolve to the same directory.
func RelativePathOrSelf(fullPath, root string) string {
	cleanPath := filepath.Clean(fullPath)
	absoluteRoot, absoluteError := filepath.Abs(root)
	if absoluteError != nil {
		return filepath.ToSlash(cleanPath)
	}
	cleanAbsoluteRoot := filepath.Clean(absoluteRoot)

	if cleanPath == cleanAbsoluteRoot {
		return "."
	}

	relativePath, relativeError := filepath.Rel(cleanAbsoluteRoot, cleanPath)
	if relativeError != nil || strings.HasPrefix(relativePath, "..") {
		return filepath.ToSlash(cleanPath)
	}
	return filepath.ToSlash(relativePath)
}
