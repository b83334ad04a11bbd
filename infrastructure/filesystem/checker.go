package filesystem

import (
	"os"

	"dubbing-service/domain/media"
)

// Checker implements media.FileChecker using the os package
type Checker struct{}

// NewChecker creates a new filesystem checker
func NewChecker() *Checker {
	return &Checker{}
}

// Exists returns true if path is an existing regular file
func (c *Checker) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Size returns the file size in bytes, or 0 if it cannot be read
func (c *Checker) Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Ensure Checker implements media.FileChecker
var _ media.FileChecker = (*Checker)(nil)
