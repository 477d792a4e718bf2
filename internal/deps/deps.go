// Package deps discovers which dependency names the current environment can
// resolve.
package deps

import (
	"context"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
)

// Set is a set of resolvable dependency names.
type Set map[string]struct{}

// NewSet builds a Set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	s.Add(names...)
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names into the set.
func (s Set) Add(names ...string) {
	for _, name := range names {
		if name != "" {
			s[name] = struct{}{}
		}
	}
}

// Names returns the sorted members of the set.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstalledLister reports recipe names recorded as installed.
type InstalledLister interface {
	Installed(ctx context.Context) ([]string, error)
}

// Options controls which sources Discover consults.
type Options struct {
	// Always-available names from configuration and the command line
	Available []string

	// Names to look up as commands on PATH
	Candidates []string
	SearchPath bool

	// <InstallPrefix>/opt/<name> directories count as installed
	InstallPrefix string
	PrefixOpt     bool

	// Previously installed recipes
	Registry InstalledLister

	// LookPath is exec.LookPath unless overridden
	LookPath func(file string) (string, error)
}

// Discover builds the available dependency set. Lookup failures of one
// source are logged and do not prevent the others from contributing.
func Discover(ctx context.Context, opts Options) Set {
	available := NewSet(opts.Available...)

	if opts.SearchPath {
		lookPath := opts.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		for _, name := range opts.Candidates {
			if available.Has(name) {
				continue
			}
			if path, err := lookPath(name); err == nil {
				logger.LogDebug("Dependency found on PATH", map[string]interface{}{
					"dependency": name,
					"path":       path,
				})
				available.Add(name)
			}
		}
	}

	if opts.PrefixOpt && opts.InstallPrefix != "" {
		optDir := filepath.Join(opts.InstallPrefix, "opt")
		if fsutil.DirExists(optDir) {
			names, err := fsutil.ListDirNames(optDir)
			if err != nil {
				logger.LogWarn("Could not list prefix opt directory", map[string]interface{}{
					"dir":   optDir,
					"error": err.Error(),
				})
			}
			available.Add(names...)
		}
	}

	if opts.Registry != nil {
		names, err := opts.Registry.Installed(ctx)
		if err != nil {
			logger.LogWarn("Could not read installed recipes from registry", map[string]interface{}{
				"error": err.Error(),
			})
		}
		available.Add(names...)
	}

	return available
}
