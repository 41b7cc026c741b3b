package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilePathValidator(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	v := NewFilePathValidator()

	tests := []struct {
		name     string
		input    string
		expected string
		errorMsg string
	}{
		{name: "empty", input: "", errorMsg: "cannot be empty"},
		{name: "tilde", input: "~/.bazaar.db", expected: filepath.Join(home, ".bazaar.db")},
		{name: "absolute", input: filepath.Join(home, "db", "x.db"), expected: filepath.Join(home, "db", "x.db")},
		{name: "traversal", input: "~/../etc/passwd", errorMsg: "traversal"},
		{name: "null byte", input: "/tmp/a\x00b", errorMsg: "null bytes"},
		{name: "control char", input: "/tmp/a\nb", errorMsg: "control characters"},
		{name: "other user tilde", input: "~root/x", errorMsg: "tilde"},
		{name: "too long", input: "/" + strings.Repeat("a", 5000), errorMsg: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateAndSanitize(tt.input)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRestrictedFilePathValidator(t *testing.T) {
	base := t.TempDir()
	v := NewFilePathValidator()
	v.AllowedBaseDirs = []string{base}

	if _, err := v.ValidateAndSanitize(filepath.Join(base, "index.bleve")); err != nil {
		t.Errorf("expected path inside base to pass: %v", err)
	}
	if _, err := v.ValidateAndSanitize(filepath.Join(filepath.Dir(base), "elsewhere.db")); err == nil {
		t.Error("expected path outside base to fail")
	}
}

func TestPathHandler_EnsureDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ph := NewPathHandler()

	resolved, err := ph.EnsureDir("~/.bazaar/logs/bazaar.log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != filepath.Join(home, ".bazaar", "logs", "bazaar.log") {
		t.Errorf("unexpected path %s", resolved)
	}
	info, err := os.Stat(filepath.Dir(resolved))
	if err != nil || !info.IsDir() {
		t.Errorf("expected parent directory to exist: %v", err)
	}
}

func TestPathHandler_DBPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ph := NewPathHandler()

	got, err := ph.DBPath("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join(home, ".bazaar.db") {
		t.Errorf("unexpected default db path %s", got)
	}

	dir := filepath.Join(home, "adir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := ph.DBPath(dir); err == nil {
		t.Error("expected a directory to be rejected as db path")
	}
}

func TestPathHandler_IndexPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ph := NewPathHandler()

	got, err := ph.IndexPath("")
	if err != nil || got != "" {
		t.Errorf("expected empty index path to stay empty, got %q, %v", got, err)
	}
	got, err = ph.IndexPath("~/.bazaar/index.bleve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(got) != "index.bleve" {
		t.Errorf("unexpected index path %s", got)
	}
}
