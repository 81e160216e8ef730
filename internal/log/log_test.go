package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestAlsoToFileTeesOutput covers the tee behavior: once AlsoToFile is
// configured, Printf/Println write to both stdout and the named file.
func TestAlsoToFileTeesOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := AlsoToFile(path); err != nil {
		t.Fatalf("AlsoToFile() error: %v", err)
	}
	Printf("hello %s\n", "world")
	Println("second line")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "hello world") {
		t.Fatalf("log file missing Printf output, got %q", got)
	}
	if !strings.Contains(got, "second line") {
		t.Fatalf("log file missing Println output, got %q", got)
	}
}
