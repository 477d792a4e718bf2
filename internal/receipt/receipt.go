// Package receipt writes and reads the record left behind by a successful
// install.
package receipt

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/jsonutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/osutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/plistutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/executor"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
)

// Receipt formats
const (
	FormatJSON  = "json"
	FormatPlist = "plist"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.+-]`)

// Receipt describes one installed recipe.
type Receipt struct {
	Name         string `json:"name" plist:"name"`
	Version      string `json:"version,omitempty" plist:"version,omitempty"`
	Homepage     string `json:"homepage,omitempty" plist:"homepage,omitempty"`
	License      string `json:"license,omitempty" plist:"license,omitempty"`
	SourceURL    string `json:"source_url,omitempty" plist:"source_url,omitempty"`
	SourceBranch string `json:"source_branch,omitempty" plist:"source_branch,omitempty"`

	BuildDependencies   []string `json:"build_dependencies,omitempty" plist:"build_dependencies,omitempty"`
	RuntimeDependencies []string `json:"runtime_dependencies,omitempty" plist:"runtime_dependencies,omitempty"`

	InstallPrefix string `json:"install_prefix" plist:"install_prefix"`
	Parallelism   int    `json:"parallelism" plist:"parallelism"`
	StepsRun      int    `json:"steps_run" plist:"steps_run"`
	Invocation    string `json:"invocation" plist:"invocation"`

	OS          string    `json:"os" plist:"os"`
	Arch        string    `json:"arch" plist:"arch"`
	InstalledAt time.Time `json:"installed_at" plist:"installed_at"`

	// blake2b-256 of the canonical recipe
	Fingerprint string `json:"fingerprint" plist:"fingerprint"`
}

// New builds the receipt for a finished install.
func New(r *recipe.Recipe, result *executor.InstallResult, prefix string, parallelism int) (*Receipt, error) {
	fingerprint, err := recipe.Fingerprint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint: %v", commonerrors.ErrReceiptWriteFailed, err)
	}

	return &Receipt{
		Name:                r.Name,
		Version:             r.Version,
		Homepage:            r.Homepage,
		License:             r.License,
		SourceURL:           r.Source.URL,
		SourceBranch:        r.Source.Branch,
		BuildDependencies:   r.DependenciesFor(recipe.PhaseBuild),
		RuntimeDependencies: r.DependenciesFor(recipe.PhaseRun),
		InstallPrefix:       prefix,
		Parallelism:         parallelism,
		StepsRun:            result.StepsRun,
		Invocation:          result.Invocation,
		OS:                  osutil.GetOSType(),
		Arch:                osutil.GetArchitecture(),
		// plist dates carry whole seconds
		InstalledAt: time.Now().UTC().Truncate(time.Second),
		Fingerprint: fingerprint,
	}, nil
}

// Path is where the receipt for name and version lives in dir.
func Path(dir, name, version, format string) string {
	base := unsafeChars.ReplaceAllString(name, "-")
	if version != "" {
		base += "-" + unsafeChars.ReplaceAllString(version, "-")
	}
	return filepath.Join(dir, base+"."+format)
}

// Write stores rc in dir and returns the file path.
func Write(dir, format string, rc *Receipt) (string, error) {
	path := Path(dir, rc.Name, rc.Version, format)

	var err error
	switch format {
	case FormatJSON:
		err = jsonutil.WriteFile(path, rc)
	case FormatPlist:
		err = plistutil.WriteFile(path, rc, plistutil.FormatXML)
	default:
		return "", fmt.Errorf("%w: unknown receipt format %q", commonerrors.ErrInvalidArgument, format)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", commonerrors.ErrReceiptWriteFailed, err)
	}
	return path, nil
}

// Read loads a receipt, choosing the decoder from the file extension.
func Read(path string) (*Receipt, error) {
	var rc Receipt

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".plist":
		err = plistutil.ReadFile(path, &rc)
	default:
		err = jsonutil.ReadFile(path, &rc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", commonerrors.ErrReceiptReadFailed, err)
	}
	return &rc, nil
}
