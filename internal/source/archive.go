package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/compressionutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/netutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
)

// fetchArchive downloads, checks and unpacks an archive source. Archives
// with a pinned checksum are cached by that checksum.
func (f *Fetcher) fetchArchive(ctx context.Context, src recipe.Source, dest string) error {
	checksum, _ := cryptoutil.ParseHashWithAlgorithm(src.SHA256)
	checksum = strings.ToLower(checksum)
	name := archiveName(src.URL)

	var archive string
	if checksum != "" && f.opts.CacheDir != "" {
		archive = filepath.Join(f.opts.CacheDir, checksum, name)
		if ok, _ := cryptoutil.VerifyFileChecksum(archive, checksum, cryptoutil.SHA256); ok {
			logger.LogInfo("Using cached source archive", map[string]interface{}{
				"url":  src.URL,
				"path": archive,
			})
			return f.unpack(ctx, archive, dest)
		}
	} else {
		tmp, err := os.MkdirTemp("", "recipe-download-")
		if err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
		defer removeAllLogged(tmp)
		archive = filepath.Join(tmp, name)
	}

	if _, err := netutil.DownloadFile(ctx, src.URL, archive, netutil.DownloadOptions{
		Timeout:    f.opts.Timeout,
		Retries:    f.opts.Retries,
		RetryDelay: f.opts.RetryDelay,
		Checksum:   src.SHA256,
		Client:     f.opts.HTTPClient,
	}); err != nil {
		return err
	}

	return f.unpack(ctx, archive, dest)
}

// unpack scans the archive if configured, then extracts it into dest.
func (f *Fetcher) unpack(ctx context.Context, archive, dest string) error {
	if f.opts.Scanner != nil {
		if _, err := f.opts.Scanner.CheckFile(ctx, archive); err != nil {
			return err
		}
	}

	format, err := compressionutil.Extract(archive, dest)
	if err != nil {
		return err
	}
	stripped, err := compressionutil.StripSingleTopDir(dest)
	if err != nil {
		return err
	}

	logger.LogInfo("Extracted source archive", map[string]interface{}{
		"format":   string(format),
		"stripped": stripped,
	})
	return nil
}

// copyLocal copies a local directory, or unpacks a local archive, into dest.
func (f *Fetcher) copyLocal(ctx context.Context, src recipe.Source, dest string) error {
	p, err := f.localPath(src.URL)
	if err != nil {
		return err
	}

	info, err := os.Stat(p)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if src.SHA256 != "" {
			checksum, _ := cryptoutil.ParseHashWithAlgorithm(src.SHA256)
			ok, err := cryptoutil.VerifyFileChecksum(p, checksum, cryptoutil.SHA256)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", commonerrors.ErrChecksumFailed, p)
			}
		}
		return f.unpack(ctx, p, dest)
	}

	if err := fsutil.CopyDir(p, dest); err != nil {
		return err
	}
	logger.LogInfo("Copied local source", map[string]interface{}{
		"path": p,
	})
	return nil
}
