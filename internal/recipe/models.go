package recipe

// Phase says when a dependency has to be present.
type Phase string

const (
	// PhaseBuild dependencies must be present before the first build step.
	PhaseBuild Phase = "build"

	// PhaseRun dependencies must be present before the first test step.
	PhaseRun Phase = "run"
)

// Valid reports whether p is one of the recognised phase tags.
func (p Phase) Valid() bool {
	return p == PhaseBuild || p == PhaseRun
}

// Recipe describes how to build, install and verify one piece of software.
// A loaded Recipe is never mutated.
type Recipe struct {
	// Name of the recipe (required)
	Name string `yaml:"name" json:"name" toml:"name"`

	// Free-text metadata
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Homepage    string `yaml:"homepage,omitempty" json:"homepage,omitempty" toml:"homepage,omitempty"`
	License     string `yaml:"license,omitempty" json:"license,omitempty" toml:"license,omitempty"`

	// Where to fetch the snapshot from
	Source Source `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`

	// Version is part of the recipe identity together with Source
	Version string `yaml:"version,omitempty" json:"version,omitempty" toml:"version,omitempty"`

	// Ordered (name, phase) pairs; a pair appears at most once
	Dependencies []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty" toml:"dependencies,omitempty"`

	// Ordered steps; BuildSteps is never empty
	BuildSteps []Step `yaml:"build_steps" json:"build_steps" toml:"build_steps"`
	TestSteps  []Step `yaml:"test_steps,omitempty" json:"test_steps,omitempty" toml:"test_steps,omitempty"`

	// Values available to argument templates
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty" toml:"variables,omitempty"`
}

// Source locates the snapshot a recipe builds.
type Source struct {
	URL    string `yaml:"url,omitempty" json:"url,omitempty" toml:"url,omitempty"`
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty" toml:"branch,omitempty"`

	// SHA256 pins archive sources; ignored for git sources
	SHA256 string `yaml:"sha256,omitempty" json:"sha256,omitempty" toml:"sha256,omitempty"`
}

// Dependency is a (name, phase) pair.
type Dependency struct {
	Name  string `yaml:"name" json:"name" toml:"name"`
	Phase Phase  `yaml:"phase" json:"phase" toml:"phase"`
}

// Step is one external process invocation.
type Step struct {
	Command          string   `yaml:"command" json:"command" toml:"command"`
	Arguments        []string `yaml:"arguments,omitempty" json:"arguments,omitempty" toml:"arguments,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty" json:"working_directory,omitempty" toml:"working_directory,omitempty"`

	// Template enables {{ .var }} expansion of Arguments and
	// WorkingDirectory; otherwise both are used verbatim
	Template bool `yaml:"template,omitempty" json:"template,omitempty" toml:"template,omitempty"`
}

// DependenciesFor returns the dependency names declared for phase, in
// declaration order.
func (r *Recipe) DependenciesFor(phase Phase) []string {
	var names []string
	for _, dep := range r.Dependencies {
		if dep.Phase == phase {
			names = append(names, dep.Name)
		}
	}
	return names
}

// DependencyNames returns every distinct dependency name in declaration order.
func (r *Recipe) DependencyNames() []string {
	seen := make(map[string]struct{}, len(r.Dependencies))
	var names []string
	for _, dep := range r.Dependencies {
		if _, ok := seen[dep.Name]; ok {
			continue
		}
		seen[dep.Name] = struct{}{}
		names = append(names, dep.Name)
	}
	return names
}
