package compressionutil

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
)

// CreateArchive packs the tree under src into dst. The entries are rooted at
// the base name of src, the way release tarballs are laid out.
func CreateArchive(src, dst string, format Format) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrFileWriteError, err)
	}
	defer out.Close()

	if format == FormatZip {
		zw := zip.NewWriter(out)
		if err := walkTree(src, func(name string, info fs.FileInfo, path string) error {
			return addZIPEntry(zw, name, info, path)
		}); err != nil {
			return err
		}
		return zw.Close()
	}

	cw, err := NewCompressor(format, out)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)
	if err := walkTree(src, func(name string, info fs.FileInfo, path string) error {
		return addTAREntry(tw, name, info, path)
	}); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

func walkTree(src string, add func(name string, info fs.FileInfo, path string) error) error {
	parent := filepath.Dir(src)
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		return add(filepath.ToSlash(rel), info, path)
	})
}

func addTAREntry(tw *tar.Writer, name string, info fs.FileInfo, path string) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		link = target
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return copyFileTo(tw, path)
}

func addZIPEntry(zw *zip.Writer, name string, info fs.FileInfo, path string) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	} else {
		hdr.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return copyFileTo(w, path)
}

func copyFileTo(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}
