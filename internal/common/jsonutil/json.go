// Package jsonutil reads and writes JSON documents on disk.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
)

// ReadFile decodes the JSON file at path into v.
func ReadFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", commonerrors.ErrFileNotFound, path)
		}
		return fmt.Errorf("%w: %s", commonerrors.ErrFileReadError, err.Error())
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %s", commonerrors.ErrUnsupportedFile, path, err.Error())
	}
	return nil
}

// WriteFile encodes v as indented JSON at path, creating the directory.
func WriteFile(path string, v interface{}) error {
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: %s", commonerrors.ErrPathNotAccessible, err.Error())
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", commonerrors.ErrFileWriteError, err.Error())
	}

	return fsutil.WriteFile(path, append(data, '\n'), 0644)
}
