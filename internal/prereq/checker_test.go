package prereq

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whisper-desk/internal/domain"
)

// fakeFileInfo satisfies os.FileInfo for stat fakes.
type fakeFileInfo struct {
	name string
	dir  bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 1 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0o755 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

// TestCheckAllToolsPresent validates the happy-path report.
func TestCheckAllToolsPresent(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string) (os.FileInfo, error) { return nil, errors.New("no stat") },
		func(context.Context, string, ...string) error { return nil },
		nil,
	)

	result := checker.Check(context.Background(), domain.ToolPaths{})
	if !result.Report.OK {
		t.Fatalf("expected OK report, got %+v", result.Report.Items)
	}
	if len(result.Report.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(result.Report.Items))
	}
	if len(result.Search.ExtraDirs) != 0 {
		t.Fatalf("unexpected search dirs: %v", result.Search.ExtraDirs)
	}
}

// TestCheckAggregatesAllMissingDependencies validates the full missing list.
func TestCheckAggregatesAllMissingDependencies(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(string) (string, error) { return "", errors.New("not found") },
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
		func(context.Context, string, ...string) error { return errors.New("unreachable") },
		nil,
	)

	result := checker.Check(context.Background(), domain.ToolPaths{})
	if result.Report.OK {
		t.Fatal("expected failures")
	}

	missing := result.Report.Missing()
	want := []string{"git", "cmake", "make", "python"}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("missing[%d] = %q, want %q", i, missing[i], want[i])
		}
	}
	for _, item := range result.Report.Items {
		if item.Hint == "" {
			t.Fatalf("item %s has no install hint", item.ID)
		}
	}
}

// TestCheckWellKnownDirExtendsSearchContext validates the Windows fallback
// and that the discovered directory flows into the returned context.
func TestCheckWellKnownDirExtendsSearchContext(t *testing.T) {
	cmakeDir := `C:\Program Files\CMake\bin`
	cmakePath := filepath.Join(cmakeDir, "cmake.exe")

	checker := NewCheckerForTests(
		"windows",
		func(name string) (string, error) {
			if strings.HasPrefix(name, "git") || strings.HasPrefix(name, "msbuild") || strings.HasPrefix(name, "python") {
				return `C:\tools\` + name, nil
			}
			return "", errors.New("not on PATH")
		},
		func(path string) (os.FileInfo, error) {
			if path == cmakePath {
				return fakeFileInfo{name: "cmake.exe"}, nil
			}
			return nil, os.ErrNotExist
		},
		func(context.Context, string, ...string) error { return nil },
		map[string][]string{"cmake": {cmakeDir}},
	)

	result := checker.Check(context.Background(), domain.ToolPaths{})
	if !result.Report.OK {
		t.Fatalf("expected OK, got %+v", result.Report.Items)
	}
	if len(result.Search.ExtraDirs) != 1 || result.Search.ExtraDirs[0] != filepath.Clean(cmakeDir) {
		t.Fatalf("search dirs = %v, want [%s]", result.Search.ExtraDirs, cmakeDir)
	}
}

// TestCheckOverrideProbedDirectly validates explicit tool path overrides.
func TestCheckOverrideProbedDirectly(t *testing.T) {
	probed := []string{}
	checker := NewCheckerForTests(
		"linux",
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
		func(_ context.Context, path string, _ ...string) error {
			probed = append(probed, path)
			return nil
		},
		nil,
	)

	result := checker.Check(context.Background(), domain.ToolPaths{CMake: "/opt/cmake/bin/cmake"})
	if !result.Report.OK {
		t.Fatalf("expected OK, got %+v", result.Report.Items)
	}

	found := false
	for _, path := range probed {
		if path == "/opt/cmake/bin/cmake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("override path was not probed: %v", probed)
	}
	if len(result.Search.ExtraDirs) != 1 || result.Search.ExtraDirs[0] != "/opt/cmake/bin" {
		t.Fatalf("search dirs = %v, want [/opt/cmake/bin]", result.Search.ExtraDirs)
	}
}

// TestSearchContextEnviron validates PATH augmentation for subprocess env.
func TestSearchContextEnviron(t *testing.T) {
	search := SearchContext{}.WithDir("/opt/tools").WithDir("/opt/tools")
	if len(search.ExtraDirs) != 1 {
		t.Fatalf("expected dedup, got %v", search.ExtraDirs)
	}

	env := search.Environ([]string{"HOME=/home/u", "PATH=/usr/bin"})
	wantPath := "PATH=/opt/tools" + string(os.PathListSeparator) + "/usr/bin"
	found := false
	for _, entry := range env {
		if entry == wantPath {
			found = true
		}
	}
	if !found {
		t.Fatalf("env = %v, want entry %q", env, wantPath)
	}
}

// TestSearchContextEnvironWithoutPath appends a PATH entry when absent.
func TestSearchContextEnvironWithoutPath(t *testing.T) {
	env := SearchContext{ExtraDirs: []string{"/x"}}.Environ([]string{"HOME=/home/u"})
	if env[len(env)-1] != "PATH=/x" {
		t.Fatalf("env = %v, want trailing PATH=/x", env)
	}
}

// TestNewCheckerGatesKnownDirsByOS verifies the install-directory fallback
// only exists on Windows; probes elsewhere must never stat Windows paths.
func TestNewCheckerGatesKnownDirsByOS(t *testing.T) {
	for _, goos := range []string{"linux", "darwin"} {
		if dirs := NewChecker(goos).knownDirs; dirs != nil {
			t.Errorf("NewChecker(%q).knownDirs = %v, want nil", goos, dirs)
		}
	}

	if dirs := NewChecker("windows").knownDirs; len(dirs) == 0 {
		t.Error("NewChecker(\"windows\") must carry well-known install dirs")
	}
}
