// Package workdir manages the scoped directory a single install builds in.
//
// A scope looks like
//
//	<root>/<name>-<random>/
//	    build/   working directory of the build steps, empty when acquired
//	    src/     fetched source snapshot
//
// and belongs to exactly one execution.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
)

const (
	buildDirName  = "build"
	sourceDirName = "src"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Scope is an acquired working directory.
type Scope struct {
	Root      string
	BuildDir  string
	SourceDir string

	// Keep leaves the directory on disk after Release
	Keep bool

	once       sync.Once
	releaseErr error
}

// Acquire creates a fresh scope under root. An empty root means the system
// temp directory.
func Acquire(root, name string, keep bool) (*Scope, error) {
	if root == "" {
		root = os.TempDir()
	}

	prefix := unsafeChars.ReplaceAllString(name, "-")
	if prefix == "" {
		prefix = "recipe"
	}

	dir, err := fsutil.CreateTempDirIn(root, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("create working directory in %s: %w", root, err)
	}

	s := &Scope{
		Root:      dir,
		BuildDir:  filepath.Join(dir, buildDirName),
		SourceDir: filepath.Join(dir, sourceDirName),
		Keep:      keep,
	}

	for _, sub := range []string{s.BuildDir, s.SourceDir} {
		if err := os.Mkdir(sub, 0755); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	logger.LogDebug("Acquired working directory", map[string]interface{}{
		"dir":  dir,
		"keep": keep,
	})

	return s, nil
}

// Resolve maps a step working_directory onto the scope. Empty means the
// build directory; relative paths are taken from the build directory and may
// not leave the scope; absolute paths are used as given. The directory is
// created if it does not exist yet.
func (s *Scope) Resolve(dir string) (string, error) {
	if dir == "" {
		return s.BuildDir, nil
	}

	resolved := dir
	if !filepath.IsAbs(dir) {
		joined, err := securejoin.SecureJoin(s.Root, filepath.Join(buildDirName, dir))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", commonerrors.ErrPathEscapesScope, dir, err)
		}
		resolved = joined
	}

	if err := fsutil.CreateDirIfNotExists(resolved); err != nil {
		return "", fmt.Errorf("create working directory %s: %w", resolved, err)
	}
	return resolved, nil
}

// Release removes the scope unless Keep is set. It is safe to call more than
// once; only the first call does any work.
func (s *Scope) Release() error {
	s.once.Do(func() {
		if s.Keep {
			logger.LogInfo("Keeping working directory", map[string]interface{}{
				"dir": s.Root,
			})
			return
		}

		if err := fsutil.DeleteDirRecursive(s.Root); err != nil {
			s.releaseErr = fmt.Errorf("%w: %s: %v", commonerrors.ErrDirCleanupError, s.Root, err)
		}
	})
	return s.releaseErr
}
