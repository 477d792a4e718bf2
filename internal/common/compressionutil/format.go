// Package compressionutil detects and unpacks source archives.
package compressionutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
)

// Format is an archive or compression format.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatGzip  Format = "gzip"
	FormatBzip2 Format = "bzip2"
	FormatXz    Format = "xz"
)

// Checked in order; tar is detected separately because its magic sits at
// offset 257.
var magicNumbers = []struct {
	format Format
	magic  []byte
}{
	{FormatZip, []byte{0x50, 0x4B, 0x03, 0x04}},
	{FormatGzip, []byte{0x1F, 0x8B}},
	{FormatBzip2, []byte{0x42, 0x5A, 0x68}},
	{FormatXz, []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}},
}

const (
	tarMagicOffset = 257
	tarMagic       = "ustar"
)

// DetectArchiveFormat determines the archive format from the file header,
// falling back to the file name.
func DetectArchiveFormat(filename string) (Format, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("%w: %s", commonerrors.ErrFileReadError, err)
	}
	defer file.Close()

	header := make([]byte, tarMagicOffset+len(tarMagic))
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("%w: %s", commonerrors.ErrFileReadError, err)
	}

	if format, ok := detectHeader(header[:n]); ok {
		return format, nil
	}

	if format, ok := FormatForName(filename); ok {
		return format, nil
	}

	return "", fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedCompression, filepath.Base(filename))
}

func detectHeader(header []byte) (Format, bool) {
	for _, m := range magicNumbers {
		if bytes.HasPrefix(header, m.magic) {
			return m.format, true
		}
	}
	if len(header) >= tarMagicOffset+len(tarMagic) &&
		string(header[tarMagicOffset:tarMagicOffset+len(tarMagic)]) == tarMagic {
		return FormatTar, true
	}
	return "", false
}

// FormatForName guesses the format from a file name or URL path.
func FormatForName(name string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".gz"):
		return FormatGzip, true
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".bz2"):
		return FormatBzip2, true
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"), strings.HasSuffix(lower, ".xz"):
		return FormatXz, true
	}
	return "", false
}
