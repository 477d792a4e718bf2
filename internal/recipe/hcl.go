package recipe

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclRecipe is the HCL shape of a Recipe. Dependencies are labelled blocks
// and steps are repeated blocks, so declaration order is kept.
type hclRecipe struct {
	Name         string            `hcl:"name,optional"`
	Description  string            `hcl:"description,optional"`
	Homepage     string            `hcl:"homepage,optional"`
	License      string            `hcl:"license,optional"`
	Version      string            `hcl:"version,optional"`
	Variables    map[string]string `hcl:"variables,optional"`
	Source       *hclSource        `hcl:"source,block"`
	Dependencies []hclDependency   `hcl:"dependency,block"`
	BuildSteps   []hclStep         `hcl:"build_step,block"`
	TestSteps    []hclStep         `hcl:"test_step,block"`
}

type hclSource struct {
	URL    string `hcl:"url,optional"`
	Branch string `hcl:"branch,optional"`
	SHA256 string `hcl:"sha256,optional"`
}

type hclDependency struct {
	Name  string `hcl:"name,label"`
	Phase string `hcl:"phase,optional"`
}

type hclStep struct {
	Command          string   `hcl:"command,optional"`
	Arguments        []string `hcl:"arguments,optional"`
	WorkingDirectory string   `hcl:"working_directory,optional"`
	Template         bool     `hcl:"template,optional"`
}

// decodeHCL leaves required-field checks to check() so HCL recipes report
// the same problems as every other format.
func decodeHCL(data []byte, filename string) (*Recipe, error) {
	if filename == "" {
		filename = "recipe.hcl"
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diagnosticsError(diags)
	}

	var raw hclRecipe
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, diagnosticsError(diags)
	}

	r := &Recipe{
		Name:        raw.Name,
		Description: raw.Description,
		Homepage:    raw.Homepage,
		License:     raw.License,
		Version:     raw.Version,
		Variables:   raw.Variables,
	}
	if raw.Source != nil {
		r.Source = Source{URL: raw.Source.URL, Branch: raw.Source.Branch, SHA256: raw.Source.SHA256}
	}
	for _, dep := range raw.Dependencies {
		r.Dependencies = append(r.Dependencies, Dependency{Name: dep.Name, Phase: Phase(dep.Phase)})
	}
	for _, step := range raw.BuildSteps {
		r.BuildSteps = append(r.BuildSteps, Step(step))
	}
	for _, step := range raw.TestSteps {
		r.TestSteps = append(r.TestSteps, Step(step))
	}

	return r, nil
}

func diagnosticsError(diags hcl.Diagnostics) error {
	problems := make([]string, 0, len(diags))
	for _, diag := range diags {
		if diag.Severity == hcl.DiagError {
			problems = append(problems, diag.Error())
		}
	}
	return &ParseError{Problems: problems, Err: diags}
}
