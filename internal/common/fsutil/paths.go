// fsutil/paths.go
package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ToAbsPath converts a relative path to an absolute path, expanding a leading ~
func ToAbsPath(path string) (string, error) {
	expanded, err := ExpandTilde(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// GetExtension returns the lower-cased file extension without the leading dot
func GetExtension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// ExpandTilde expands the tilde in a path to the user's home directory
func ExpandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
