package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a recipe encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatForPath picks the format from a file extension. Unknown extensions
// are read as YAML.
func FormatForPath(path string) Format {
	switch fsutil.GetExtension(path) {
	case "json":
		return FormatJSON
	case "toml":
		return FormatTOML
	case "hcl":
		return FormatHCL
	default:
		return FormatYAML
	}
}

// ParseFormat converts a user supplied format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatYAML, FormatJSON, FormatTOML, FormatHCL:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown recipe format %q", commonerrors.ErrInvalidArgument, name)
	}
}

// Load reads and parses the recipe at path. A missing or unreadable file is
// an I/O error, not a ParseError.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: recipe %s", commonerrors.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrFileReadError, err)
	}

	return Parse(data, FormatForPath(path), path)
}

// Parse decodes data in the given format and checks the structural
// invariants. It has no side effects. label names the input in errors.
func Parse(data []byte, format Format, label string) (*Recipe, error) {
	var (
		r   *Recipe
		err error
	)

	switch format {
	case FormatYAML:
		r, err = decodeYAML(data)
	case FormatJSON:
		r, err = decodeJSON(data)
	case FormatTOML:
		r, err = decodeTOML(data)
	case FormatHCL:
		r, err = decodeHCL(data, label)
	default:
		return nil, &ParseError{
			Source:   label,
			Problems: []string{fmt.Sprintf("unsupported recipe format %q", format)},
			Err:      commonerrors.ErrUnsupportedFile,
		}
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = label
			return nil, pe
		}
		return nil, &ParseError{Source: label, Problems: []string{err.Error()}, Err: err}
	}

	normalize(r)

	if problems := check(r); len(problems) > 0 {
		return nil, &ParseError{Source: label, Problems: problems}
	}

	return r, nil
}

func decodeYAML(data []byte) (*Recipe, error) {
	r := &Recipe{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("recipe is empty")
		}
		return nil, err
	}
	return r, nil
}

func decodeJSON(data []byte) (*Recipe, error) {
	r := &Recipe{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(r); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("recipe is empty")
		}
		return nil, err
	}
	return r, nil
}

func decodeTOML(data []byte) (*Recipe, error) {
	r := &Recipe{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(r); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return nil, errors.New(missing.String())
		}
		return nil, err
	}
	return r, nil
}

// normalize maps empty collections to nil so that every encoding of the
// same recipe compares equal.
func normalize(r *Recipe) {
	if len(r.Dependencies) == 0 {
		r.Dependencies = nil
	}
	if len(r.BuildSteps) == 0 {
		r.BuildSteps = nil
	}
	if len(r.TestSteps) == 0 {
		r.TestSteps = nil
	}
	if len(r.Variables) == 0 {
		r.Variables = nil
	}
	for i := range r.BuildSteps {
		if len(r.BuildSteps[i].Arguments) == 0 {
			r.BuildSteps[i].Arguments = nil
		}
	}
	for i := range r.TestSteps {
		if len(r.TestSteps[i].Arguments) == 0 {
			r.TestSteps[i].Arguments = nil
		}
	}
}

// check collects every structural problem instead of stopping at the first.
func check(r *Recipe) []string {
	var problems []string

	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}

	if len(r.BuildSteps) == 0 {
		problems = append(problems, "at least one build step is required")
	}

	seen := make(map[Dependency]struct{}, len(r.Dependencies))
	for i, dep := range r.Dependencies {
		if strings.TrimSpace(dep.Name) == "" {
			problems = append(problems, fmt.Sprintf("dependency %d: name is required", i))
		}
		switch {
		case dep.Phase == "":
			problems = append(problems, fmt.Sprintf("dependency %d (%s): phase is required (build or run)", i, dep.Name))
		case !dep.Phase.Valid():
			problems = append(problems, fmt.Sprintf("dependency %d (%s): unknown phase %q (want build or run)", i, dep.Name, dep.Phase))
		}
		if _, dup := seen[dep]; dup {
			problems = append(problems, fmt.Sprintf("dependency %d: duplicate (%s, %s)", i, dep.Name, dep.Phase))
		}
		seen[dep] = struct{}{}
	}

	for i, step := range r.BuildSteps {
		if strings.TrimSpace(step.Command) == "" {
			problems = append(problems, fmt.Sprintf("build step %d: command is required", i))
		}
	}
	for i, step := range r.TestSteps {
		if strings.TrimSpace(step.Command) == "" {
			problems = append(problems, fmt.Sprintf("test step %d: command is required", i))
		}
	}

	return problems
}
