package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChecker(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(file, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker()
	tests := []struct {
		name     string
		path     string
		wantOK   bool
		wantSize int64
	}{
		{"existing file", file, true, 5},
		{"missing file", filepath.Join(dir, "nope.mp4"), false, 0},
		{"directory", dir, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Exists(tt.path); got != tt.wantOK {
				t.Errorf("Exists() = %v, want %v", got, tt.wantOK)
			}
			if tt.name != "directory" {
				if got := c.Size(tt.path); got != tt.wantSize {
					t.Errorf("Size() = %d, want %d", got, tt.wantSize)
				}
			}
		})
	}
}
