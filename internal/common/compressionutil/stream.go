package compressionutil

import (
	"compress/gzip"
	"fmt"
	"io"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// NewDecompressor wraps r in a reader for the given compression format.
// FormatTar passes r through unchanged.
func NewDecompressor(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", commonerrors.ErrInvalidArchive, err)
		}
		return gz, nil
	case FormatBzip2:
		bz, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", commonerrors.ErrInvalidArchive, err)
		}
		return bz, nil
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: xz: %v", commonerrors.ErrInvalidArchive, err)
		}
		return io.NopCloser(xr), nil
	default:
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedCompression, format)
	}
}

// NewCompressor wraps w in a writer for the given compression format.
// Closing the returned writer flushes it but leaves w open.
func NewCompressor(format Format, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case FormatTar:
		return nopWriteCloser{w}, nil
	case FormatGzip:
		return gzip.NewWriter(w), nil
	case FormatBzip2:
		bw, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return nil, err
		}
		return bw, nil
	case FormatXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedCompression, format)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
