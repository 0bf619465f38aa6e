package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/session"
)

type wordCounter struct{}

func (wordCounter) Name() string { return "word" }

func (wordCounter) CountString(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func newProjectFixture(testHandle *testing.T) *fsys.MemoryFileSystem {
	testHandle.Helper()
	fileSystem := fsys.NewMemoryFileSystem()
	baseTime := time.Now()
	fileSystem.WriteFile("/project/.ignore", []byte("dist/\n"), baseTime)
	fileSystem.WriteFile("/project/readme.md", []byte("hello project"), baseTime)
	fileSystem.WriteFile("/project/src/index.ts", []byte("const answer = 42"), baseTime)
	fileSystem.WriteFile("/project/dist/bundle.js", []byte("compiled output"), baseTime)
	return fileSystem
}

func newTestSession(testHandle *testing.T, fileSystem *fsys.MemoryFileSystem) *session.Session {
	testHandle.Helper()
	return session.NewWithCounter(fileSystem, zap.NewNop(), session.DefaultLimits(), wordCounter{}, "word")
}

func TestCollectFilesHonorsIgnoreRules(testHandle *testing.T) {
	fileSystem := newProjectFixture(testHandle)
	workSession := newTestSession(testHandle, fileSystem)

	collected := workSession.CollectFiles(context.Background(), []string{"/project"}, true)
	for _, filePath := range collected {
		if strings.Contains(filePath, "/dist/") {
			testHandle.Fatalf("ignored file collected: %s", filePath)
		}
	}
	if len(collected) != 3 {
		testHandle.Fatalf("expected 3 files, got %v", collected)
	}
}

func TestCollectFilesWithoutIgnoreRulesStillExcludesGit(testHandle *testing.T) {
	fileSystem := newProjectFixture(testHandle)
	fileSystem.WriteFile("/project/.git/HEAD", []byte("ref: refs/heads/main"), time.Now())
	workSession := newTestSession(testHandle, fileSystem)

	collected := workSession.CollectFiles(context.Background(), []string{"/project"}, false)
	sawDist := false
	for _, filePath := range collected {
		if strings.Contains(filePath, "/.git/") {
			testHandle.Fatalf(".git content collected: %s", filePath)
		}
		if strings.Contains(filePath, "/dist/") {
			sawDist = true
		}
	}
	if !sawDist {
		testHandle.Fatalf("disabled ignore rules still pruned dist/: %v", collected)
	}
}

func TestFileMapRendersCollectedTree(testHandle *testing.T) {
	fileSystem := newProjectFixture(testHandle)
	workSession := newTestSession(testHandle, fileSystem)

	rendered := workSession.FileMap(context.Background(), []string{"/project"}, true, nil)
	if !strings.HasPrefix(rendered, "<file_map>\n/project\n") {
		testHandle.Fatalf("unexpected map prefix:\n%s", rendered)
	}
	if !strings.Contains(rendered, "index.ts *") {
		testHandle.Fatalf("map missing collected file:\n%s", rendered)
	}
	if strings.Contains(rendered, "bundle.js") {
		testHandle.Fatalf("map includes ignored file:\n%s", rendered)
	}
	if !strings.Contains(rendered, "(* denotes selected files)") {
		testHandle.Fatalf("single-root map missing legend:\n%s", rendered)
	}
}

func TestFileMapSharesCapAcrossRoots(testHandle *testing.T) {
	fileSystem := fsys.NewMemoryFileSystem()
	baseTime := time.Now()
	fileSystem.WriteFile("/alpha/a.txt", []byte("a"), baseTime)
	fileSystem.WriteFile("/alpha/b.txt", []byte("b"), baseTime)
	fileSystem.WriteFile("/beta/c.txt", []byte("c"), baseTime)

	limits := session.DefaultLimits()
	limits.MaxFiles = 2
	workSession := session.NewWithCounter(fileSystem, zap.NewNop(), limits, wordCounter{}, "word")

	rendered := workSession.FileMap(context.Background(), []string{"/alpha", "/beta"}, true, nil)
	fileCount := strings.Count(rendered, ".txt")
	if fileCount != 2 {
		testHandle.Fatalf("expected 2 files across roots, saw %d:\n%s", fileCount, rendered)
	}
}

func TestCountTokensOverCollectedFiles(testHandle *testing.T) {
	fileSystem := newProjectFixture(testHandle)
	workSession := newTestSession(testHandle, fileSystem)

	collected := workSession.CollectFiles(context.Background(), []string{"/project"}, true)
	total := workSession.CountTokens(context.Background(), collected)
	// .ignore has one word, readme.md two, index.ts four.
	if total != 7 {
		testHandle.Fatalf("expected 7 tokens, got %d", total)
	}
}

func TestLimitsNormalization(testHandle *testing.T) {
	fileSystem := fsys.NewMemoryFileSystem()
	workSession := session.NewWithCounter(fileSystem, nil, session.Limits{}, wordCounter{}, "word")
	if workSession.Limits() != session.DefaultLimits() {
		testHandle.Fatalf("zero limits did not normalize to defaults: %+v", workSession.Limits())
	}
}

func TestFileMapOverEmptyDirectoryIsEmpty(testHandle *testing.T) {
	fileSystem := fsys.NewMemoryFileSystem()
	fileSystem.MkdirAll("/empty")
	workSession := newTestSession(testHandle, fileSystem)

	if rendered := workSession.FileMap(context.Background(), []string{"/empty"}, true, nil); rendered != "" {
		testHandle.Fatalf("expected empty output without markup, got %q", rendered)
	}
}
