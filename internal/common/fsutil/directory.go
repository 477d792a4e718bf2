// fsutil/directory.go
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CreateDir creates a directory if it doesn't exist
func CreateDir(path string, perm os.FileMode) error {
	if DirExists(path) {
		return nil // Directory already exists
	}
	return os.MkdirAll(path, perm)
}

// CreateDirIfNotExists creates a directory with standard permissions if it doesn't exist
func CreateDirIfNotExists(path string) error {
	return CreateDir(path, 0755)
}

// DeleteDirRecursive removes a directory and all its contents
func DeleteDirRecursive(path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil // Directory doesn't exist, nothing to do
	}
	return os.RemoveAll(path)
}

// CopyDir recursively copies a directory and its contents
func CopyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			if err := CopySymlink(srcPath, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := CopyDir(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := CopyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// ListDirNames returns the sorted names of the subdirectories of path
func ListDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
			continue
		}
		// opt/ trees are usually symlinks to versioned directories
		if entry.Type()&os.ModeSymlink != 0 && DirExists(filepath.Join(path, entry.Name())) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsDirEmpty checks if a directory is empty
func IsDirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if len(names) == 0 {
		return true, nil
	}
	return false, err
}

// CreateTempDirIn creates a temporary directory with a prefix in a specific directory
func CreateTempDirIn(dir, prefix string) (string, error) {
	if err := CreateDirIfNotExists(dir); err != nil {
		return "", err
	}

	return os.MkdirTemp(dir, prefix)
}

// CopySymlink copies a symlink from source to destination
func CopySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}

	if err := CreateDirIfNotExists(filepath.Dir(dst)); err != nil {
		return err
	}

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}

	return os.Symlink(target, dst)
}
