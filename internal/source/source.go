// Package source materialises a recipe source snapshot on disk.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/netutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/vtutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
)

// Kind is how a source locator is fetched.
type Kind string

const (
	KindGit     Kind = "git"
	KindArchive Kind = "archive"
	KindLocal   Kind = "local"
)

// Classify decides how src is fetched. Locators ending in .git, using the
// git or ssh schemes, in scp form, or carrying a branch are git
// repositories; other http(s) URLs are archives; everything else is a local
// path.
func Classify(src recipe.Source) Kind {
	u := src.URL
	lower := strings.ToLower(u)

	switch {
	case strings.HasSuffix(strings.TrimSuffix(lower, "/"), ".git"),
		strings.HasPrefix(lower, "git://"),
		strings.HasPrefix(lower, "ssh://"),
		strings.HasPrefix(lower, "git@"),
		src.Branch != "":
		return KindGit
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return KindArchive
	default:
		return KindLocal
	}
}

// Options configures a Fetcher.
type Options struct {
	// Downloaded archives with a pinned checksum are kept here
	CacheDir string

	// Per-attempt network timeout
	Timeout time.Duration
	Retries uint

	// Delay before the first retry; zero uses the download default
	RetryDelay time.Duration

	// Relative local paths are resolved against BaseDir
	BaseDir string

	// Optional archive scan
	Scanner *vtutil.Scanner

	HTTPClient *http.Client
}

// Fetcher fetches recipe sources.
type Fetcher struct {
	opts Options
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	return &Fetcher{opts: opts}
}

// Fetch materialises src in dest, which must exist and be empty. Errors wrap
// ErrSourceFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, src recipe.Source, dest string) error {
	if src.URL == "" {
		return fmt.Errorf("%w: no source url", commonerrors.ErrInvalidArgument)
	}

	kind := Classify(src)
	logger.LogDebug("Fetching source", map[string]interface{}{
		"url":  src.URL,
		"kind": string(kind),
		"dest": dest,
	})

	var err error
	switch kind {
	case KindGit:
		err = f.cloneGit(ctx, src, dest)
	case KindArchive:
		err = f.fetchArchive(ctx, src, dest)
	case KindLocal:
		err = f.copyLocal(ctx, src, dest)
	default:
		err = fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedSource, src.URL)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", commonerrors.ErrSourceFetchFailed, src.URL, err)
	}
	return nil
}

// localPath turns a file:// URL or a path into an absolute path.
func (f *Fetcher) localPath(locator string) (string, error) {
	p := locator
	if strings.HasPrefix(strings.ToLower(locator), "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("%w: %v", commonerrors.ErrInvalidURL, err)
		}
		p = u.Path
	}
	p, err := fsutil.ExpandTilde(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) && f.opts.BaseDir != "" {
		p = filepath.Join(f.opts.BaseDir, p)
	}
	return filepath.Abs(p)
}

// archiveName is the file name an archive URL is stored under.
func archiveName(locator string) string {
	if name, err := netutil.FilenameFromURL(locator); err == nil {
		return name
	}
	return "source-archive"
}

func removeAllLogged(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.LogWarn("Failed to remove temporary download", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}
}
