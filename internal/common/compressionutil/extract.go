package compressionutil

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
)

// Extract unpacks archive into dest, which must exist. Compressed single
// streams are assumed to hold a tarball. Entries cannot be written outside
// dest.
func Extract(archive, dest string) (Format, error) {
	format, err := DetectArchiveFormat(archive)
	if err != nil {
		return "", err
	}

	if format == FormatZip {
		return format, extractZIP(archive, dest)
	}

	file, err := os.Open(archive)
	if err != nil {
		return format, fmt.Errorf("%w: %v", commonerrors.ErrFileReadError, err)
	}
	defer file.Close()

	stream, err := NewDecompressor(format, file)
	if err != nil {
		return format, err
	}
	defer stream.Close()

	return format, extractTAR(stream, dest)
}

func extractTAR(r io.Reader, dest string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: tar: %v", commonerrors.ErrInvalidArchive, err)
		}

		target, err := securejoin.SecureJoin(dest, hdr.Name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", commonerrors.ErrExtractionFailed, hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := securejoin.SecureJoin(dest, hdr.Linkname)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", commonerrors.ErrExtractionFailed, hdr.Linkname, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
			}
		default:
			// pax headers, devices and fifos have no place in a source tree
		}
	}
}

func extractZIP(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("%w: zip: %v", commonerrors.ErrInvalidArchive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := securejoin.SecureJoin(dest, f.Name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", commonerrors.ErrExtractionFailed, f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
			}
			continue
		}

		if err := extractZIPEntry(f, target); err != nil {
			return err
		}
	}

	return nil
}

func extractZIPEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", commonerrors.ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	return writeFile(target, rc, mode)
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("%w: %s: %v", commonerrors.ErrExtractionFailed, target, err)
	}
	return nil
}

func writeSymlink(target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}
	return nil
}

// StripSingleTopDir hoists the contents of dir/<top> into dir when <top> is
// the only entry of dir and a directory, as in project-1.2/ tarballs.
func StripSingleTopDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("%w: %v", commonerrors.ErrDirNotFound, err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return false, nil
	}

	top := filepath.Join(dir, entries[0].Name())
	children, err := os.ReadDir(top)
	if err != nil {
		return false, fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}

	staging := top + ".strip"
	if err := os.Rename(top, staging); err != nil {
		return false, fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}
	for _, child := range children {
		if err := os.Rename(filepath.Join(staging, child.Name()), filepath.Join(dir, child.Name())); err != nil {
			return false, fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
		}
	}
	if err := os.Remove(staging); err != nil {
		return false, fmt.Errorf("%w: %v", commonerrors.ErrExtractionFailed, err)
	}
	return true, nil
}
