package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codetriever/ingestcore/pkg/config"
	"github.com/codetriever/ingestcore/pkg/ignore"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestScanRepository(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"test.java":     "public class Test {}",
		"src/main.java": "public class Main {}",
		"test.txt":      "not a code file",
		"README.md":     "# README",
	})

	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)
	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(result.Files) < 2 {
		t.Errorf("expected at least 2 files, got %d", len(result.Files))
	}
	for _, file := range result.Files {
		if filepath.Ext(file) != ".java" {
			t.Errorf("non-java file found: %s", file)
		}
	}
}

func TestIgnorePatterns(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"src/main.java":         "public class Main {}",
		"node_modules/lib.js":   "ignored",
		"build/output.java":     "ignored",
		".git/config":           "ignored",
		"test/test.java":        "public class Test {}",
		"vendor/external.ts":    "ignored",
		"dist/bundle.js":        "ignored",
		"target/compiled.class": "ignored",
	})

	patterns := []string{"node_modules/**", "build/**", ".git/**", "vendor/**", "dist/**", "target/**"}
	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, patterns)

	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(result.Files) != 2 {
		t.Errorf("expected 2 files, got %d: %v", len(result.Files), result.Files)
	}
	for _, file := range result.Files {
		for _, ignored := range []string{"node_modules", "build", ".git", "vendor", "dist", "target"} {
			if filepath.Dir(file) != tmpDir && filepathContainsSegment(file, ignored) {
				t.Errorf("ignored file found: %s", file)
			}
		}
	}
}

func filepathContainsSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func TestFileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()
	smallFile := filepath.Join(tmpDir, "small.java")
	largeFile := filepath.Join(tmpDir, "large.java")

	if err := os.WriteFile(smallFile, make([]byte, 100), 0644); err != nil {
		t.Fatalf("write small file: %v", err)
	}
	if err := os.WriteFile(largeFile, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("write large file: %v", err)
	}

	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)
	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(result.Files) != 1 || result.Files[0] != smallFile {
		t.Fatalf("expected only the small file, got %v", result.Files)
	}
}

func TestSupportedExtensions(t *testing.T) {
	tmpDir := t.TempDir()
	expected := map[string]bool{
		"test.java": true,
		"test.ts":   true,
		"test.tsx":  true,
		"test.js":   true,
		"test.jsx":  true,
		"test.mjs":  true,
		"test.go":   true,
		"test.py":   true,
		"test.txt":  false,
		"test.md":   false,
		"test":      false,
	}
	for filename := range expected {
		if err := os.WriteFile(filepath.Join(tmpDir, filename), []byte("content"), 0644); err != nil {
			t.Fatalf("write %s: %v", filename, err)
		}
	}

	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)
	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for _, file := range result.Files {
		filename := filepath.Base(file)
		want, ok := expected[filename]
		if !ok {
			t.Errorf("unexpected file found: %s", filename)
			continue
		}
		if !want {
			t.Errorf("unsupported file found: %s", filename)
		}
	}
}

func TestEmptyRepository(t *testing.T) {
	tmpDir := t.TempDir()
	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)

	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Files) != 0 {
		t.Errorf("expected 0 files in empty directory, got %d", len(result.Files))
	}
}

func TestNestedDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"a/b/c/deep.java": "content",
		"x/y/z/file.ts":   "content",
		"root.java":       "content",
	})

	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)
	result, err := scanner.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Files) != 3 {
		t.Errorf("expected 3 files, got %d", len(result.Files))
	}
}

func TestIgnoreMatcher(t *testing.T) {
	matcher := ignore.NewMatcher([]string{"node_modules/**", "*.log", "build/**"})

	tests := []struct {
		path         string
		shouldIgnore bool
	}{
		{"node_modules/package.json", true},
		{"src/main.java", false},
		{"debug.log", true},
		{"build/output.js", true},
		{"test.java", false},
		{"src/node_modules/lib.js", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := matcher.ShouldIgnore(tt.path); got != tt.shouldIgnore {
				t.Errorf("path %s: expected ignore=%v, got %v", tt.path, tt.shouldIgnore, got)
			}
		})
	}
}

func TestSubmissionsReadsFileContent(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"main.go": "package main\n"})

	scanner := NewScanner(&config.IndexingConfig{MaxFileSizeMB: 1}, nil)
	submissions, result, err := scanner.Submissions(tmpDir)
	if err != nil {
		t.Fatalf("Submissions: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	if submissions[0].Path != "main.go" {
		t.Errorf("expected relative path main.go, got %s", submissions[0].Path)
	}
	if string(submissions[0].Content) != "package main\n" {
		t.Errorf("unexpected content: %s", submissions[0].Content)
	}
	if result.Languages["go"] != 1 {
		t.Errorf("expected language stats to count go:1, got %+v", result.Languages)
	}
}
