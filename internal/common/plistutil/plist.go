// Package plistutil provides utilities for working with property list files
package plistutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"howett.net/plist"
)

// Format represents the plist format
type Format int

const (
	// FormatXML is the XML plist format
	FormatXML Format = iota
	// FormatBinary is the binary plist format
	FormatBinary
)

// ReadFile decodes the property list at path into v. Both XML and binary
// lists are accepted.
func ReadFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", commonerrors.ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", commonerrors.ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: %s", commonerrors.ErrPathNotAccessible, path)
	}

	if _, err := plist.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedFile, err.Error())
	}
	return nil
}

// WriteFile encodes v at path in the given format
func WriteFile(path string, v interface{}, format Format) error {
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: failed to create directory", commonerrors.ErrPathNotAccessible)
	}

	var buf bytes.Buffer
	var encoder *plist.Encoder
	switch format {
	case FormatBinary:
		encoder = plist.NewEncoderForFormat(&buf, plist.BinaryFormat)
	default:
		encoder = plist.NewEncoderForFormat(&buf, plist.XMLFormat)
		encoder.Indent("\t")
	}

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("%w: %s", commonerrors.ErrFileWriteError, err.Error())
	}

	if err := fsutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", commonerrors.ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: %s", commonerrors.ErrFileWriteError, path)
	}
	return nil
}
