package collect

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/ignore"
	"github.com/temirov/promptmap/internal/limiter"
)

const testFileCap = 1000

func newTestCollector(memoryFileSystem *fsys.MemoryFileSystem) *Collector {
	return New(memoryFileSystem, limiter.New(24), nil)
}

func populateProject(memoryFileSystem *fsys.MemoryFileSystem) {
	modTime := time.Unix(1700000000, 0)
	memoryFileSystem.WriteFile("/project/package.json", []byte("{}"), modTime)
	memoryFileSystem.WriteFile("/project/src/index.ts", []byte("export {}"), modTime)
	memoryFileSystem.WriteFile("/project/src/utils.ts", []byte("export {}"), modTime)
	memoryFileSystem.WriteFile("/project/dist/a.txt", []byte("built"), modTime)
	memoryFileSystem.WriteFile("/project/dist/sub/b.txt", []byte("built"), modTime)
	memoryFileSystem.WriteFile("/project/.git/HEAD", []byte("ref: refs/heads/main"), modTime)
}

// TestCollectPrunesIgnoredDirectories verifies that an ignored directory and
// its whole subtree are absent even though no file-level pattern matches the
// files individually.
func TestCollectPrunesIgnoredDirectories(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	matcher := ignore.NewMatcher([]string{"dist/"})

	collected := collector.Collect(context.Background(), "/project", matcher, "/project", testFileCap, nil)
	expected := []string{"/project/package.json", "/project/src/index.ts", "/project/src/utils.ts"}
	if !reflect.DeepEqual(collected, expected) {
		testingHandle.Fatalf("unexpected collection: got %v want %v", collected, expected)
	}
}

// TestCollectNeverListsBeneathPrunedDirectories verifies pruning avoids
// reading content of ignored subtrees entirely.
func TestCollectNeverListsBeneathPrunedDirectories(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	matcher := ignore.NewMatcher([]string{"dist/"})
	collected := collector.Collect(context.Background(), "/project", matcher, "/project", testFileCap, nil)

	for _, collectedPath := range collected {
		if collectedPath == "/project/dist/a.txt" || collectedPath == "/project/dist/sub/b.txt" {
			testingHandle.Fatalf("pruned subtree leaked into results: %v", collected)
		}
	}
}

// TestCollectIsSubsetOfActualFiles verifies the collected set never contains
// paths that do not exist under the root.
func TestCollectIsSubsetOfActualFiles(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	collected := collector.Collect(context.Background(), "/project", ignore.NewMatcher(nil), "/project", testFileCap, nil)

	actualFiles := make(map[string]struct{})
	for _, actualPath := range memoryFileSystem.AllFiles() {
		actualFiles[actualPath] = struct{}{}
	}
	for _, collectedPath := range collected {
		if _, exists := actualFiles[collectedPath]; !exists {
			testingHandle.Fatalf("collected path %s does not exist on the filesystem", collectedPath)
		}
	}
}

// TestCollectEnforcesCap verifies a single traversal call never returns more
// than the configured cap across any directory shape.
func TestCollectEnforcesCap(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	modTime := time.Unix(1700000000, 0)
	memoryFileSystem.WriteFile("/wide/a/1.txt", []byte("x"), modTime)
	memoryFileSystem.WriteFile("/wide/a/2.txt", []byte("x"), modTime)
	memoryFileSystem.WriteFile("/wide/b/3.txt", []byte("x"), modTime)
	memoryFileSystem.WriteFile("/wide/b/c/4.txt", []byte("x"), modTime)
	memoryFileSystem.WriteFile("/wide/5.txt", []byte("x"), modTime)

	collector := newTestCollector(memoryFileSystem)
	const fileCap = 3
	collected := collector.Collect(context.Background(), "/wide", ignore.NewMatcher(nil), "/wide", fileCap, nil)
	if len(collected) > fileCap {
		testingHandle.Fatalf("collected %d files, cap is %d", len(collected), fileCap)
	}
	if len(collected) != fileCap {
		testingHandle.Fatalf("expected exactly %d files before the soft stop, got %d", fileCap, len(collected))
	}
}

// TestCollectSharedCounterSpansRoots verifies that parallel sibling roots
// sharing one counter respect a single combined cap.
func TestCollectSharedCounterSpansRoots(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	modTime := time.Unix(1700000000, 0)
	for _, rootName := range []string{"/one", "/two"} {
		memoryFileSystem.WriteFile(rootName+"/a.txt", []byte("x"), modTime)
		memoryFileSystem.WriteFile(rootName+"/b.txt", []byte("x"), modTime)
	}

	collector := newTestCollector(memoryFileSystem)
	const fileCap = 3
	sharedCounter := NewCounter()
	roots := []Root{
		{Path: "/one", Matcher: ignore.NewMatcher(nil)},
		{Path: "/two", Matcher: ignore.NewMatcher(nil)},
	}
	collected := collector.CollectRoots(context.Background(), roots, fileCap, sharedCounter)
	if len(collected) > fileCap {
		testingHandle.Fatalf("shared counter allowed %d files past the cap %d", len(collected), fileCap)
	}
	if sharedCounter.Collected() > fileCap {
		testingHandle.Fatalf("counter advanced past the cap: %d", sharedCounter.Collected())
	}
}

// TestCollectIsIdempotentOnUnchangedFilesystem verifies two collect calls
// against an unchanged filesystem return identical path sets.
func TestCollectIsIdempotentOnUnchangedFilesystem(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	matcher := ignore.NewMatcher([]string{"dist/"})

	firstRun := collector.Collect(context.Background(), "/project", matcher, "/project", testFileCap, nil)
	secondRun := collector.Collect(context.Background(), "/project", matcher, "/project", testFileCap, nil)
	if !reflect.DeepEqual(firstRun, secondRun) {
		testingHandle.Fatalf("collect is not idempotent: %v vs %v", firstRun, secondRun)
	}
}

// TestCollectAlwaysExcludesGitDirectory verifies the built-in default prunes
// version-control metadata even with no user patterns.
func TestCollectAlwaysExcludesGitDirectory(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	collected := collector.Collect(context.Background(), "/project", ignore.NewMatcher(nil), "/project", testFileCap, nil)
	for _, collectedPath := range collected {
		if collectedPath == "/project/.git/HEAD" {
			testingHandle.Fatal("version-control metadata leaked into results")
		}
	}
}

// TestCollectCancelledBeforeStartReturnsEmpty verifies an already-signalled
// token yields an empty result without error.
func TestCollectCancelledBeforeStartReturnsEmpty(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	collector := newTestCollector(memoryFileSystem)
	collected := collector.Collect(cancelledContext, "/project", ignore.NewMatcher(nil), "/project", testFileCap, nil)
	if len(collected) != 0 {
		testingHandle.Fatalf("cancelled traversal returned results: %v", collected)
	}
}

// TestCollectRootsDeduplicatesOverlappingResults verifies the caller-facing
// multi-root helper removes duplicate paths.
func TestCollectRootsDeduplicatesOverlappingResults(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	roots := []Root{
		{Path: "/project", Matcher: ignore.NewMatcher(nil)},
		{Path: "/project", Matcher: ignore.NewMatcher(nil)},
	}
	collected := collector.CollectRoots(context.Background(), roots, testFileCap, nil)

	seenPaths := make(map[string]struct{})
	for _, collectedPath := range collected {
		if _, duplicate := seenPaths[collectedPath]; duplicate {
			testingHandle.Fatalf("duplicate path %s in deduplicated results", collectedPath)
		}
		seenPaths[collectedPath] = struct{}{}
	}
}

// TestCollectSingleFileTarget verifies a file target is returned directly
// unless the matcher excludes it.
func TestCollectSingleFileTarget(testingHandle *testing.T) {
	memoryFileSystem := fsys.NewMemoryFileSystem()
	populateProject(memoryFileSystem)

	collector := newTestCollector(memoryFileSystem)
	collected := collector.Collect(context.Background(), "/project/src/index.ts", ignore.NewMatcher(nil), "/project", testFileCap, nil)
	if !reflect.DeepEqual(collected, []string{"/project/src/index.ts"}) {
		testingHandle.Fatalf("unexpected single-file collection: %v", collected)
	}

	excluded := collector.Collect(context.Background(), "/project/src/index.ts", ignore.NewMatcher([]string{"src/"}), "/project", testFileCap, nil)
	if len(excluded) != 0 {
		testingHandle.Fatalf("matcher-excluded file was still collected: %v", excluded)
	}
}

// TestCollectBoundsSymlinkCycles verifies that a directory reachable through
// a symbolic link back into an ancestor is descended only once: the real file
// appears a single time instead of once per cycle level.
func TestCollectBoundsSymlinkCycles(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	realFilePath := filepath.Join(rootDirectory, "file.txt")
	if writeError := os.WriteFile(realFilePath, []byte("content"), 0o644); writeError != nil {
		testingHandle.Fatalf("write fixture: %v", writeError)
	}
	if linkError := os.Symlink(rootDirectory, filepath.Join(rootDirectory, "loop")); linkError != nil {
		testingHandle.Skipf("symlinks unavailable: %v", linkError)
	}

	collector := New(fsys.NewOSFileSystem(), limiter.New(24), nil)
	collected := collector.Collect(context.Background(), rootDirectory, nil, rootDirectory, 10, nil)

	if len(collected) != 1 {
		testingHandle.Fatalf("expected the single real file, got %v", collected)
	}
	fileCount := 0
	for _, collectedPath := range collected {
		if filepath.Base(collectedPath) == "file.txt" {
			fileCount++
		}
	}
	if fileCount != 1 {
		testingHandle.Fatalf("real file collected %d times: %v", fileCount, collected)
	}
}
