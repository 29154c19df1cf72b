package utils

import (
	"os"
	"path/filepath"
)

// FileExists checks whether a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks whether a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// AbsPath converts a path to absolute form.
func AbsPath(path string) (string, error) {
	return filepath.Abs(path)
}
