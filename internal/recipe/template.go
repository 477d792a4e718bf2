package recipe

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Built-in template variables. They are set by the executor and override
// recipe or user variables with the same name.
const (
	VarName      = "name"
	VarVersion   = "version"
	VarPrefix    = "prefix"
	VarJobs      = "jobs"
	VarBuildDir  = "build_dir"
	VarSourceDir = "source_dir"
	VarOS        = "os"
	VarArch      = "arch"
)

// MergeVariables layers variable maps; later maps win.
func MergeVariables(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// ExpandStep returns a copy of step with its arguments and working directory
// expanded against vars. Steps without Template set come back verbatim. The
// command itself is never templated.
func ExpandStep(step Step, vars map[string]string) (Step, error) {
	expanded := Step{Command: step.Command, Template: step.Template}

	if step.Arguments != nil {
		expanded.Arguments = make([]string, len(step.Arguments))
	}
	if !step.Template {
		copy(expanded.Arguments, step.Arguments)
		expanded.WorkingDirectory = step.WorkingDirectory
		return expanded, nil
	}

	for i, arg := range step.Arguments {
		value, err := expand(arg, vars)
		if err != nil {
			return Step{}, fmt.Errorf("argument %d: %w", i, err)
		}
		expanded.Arguments[i] = value
	}

	dir, err := expand(step.WorkingDirectory, vars)
	if err != nil {
		return Step{}, fmt.Errorf("working_directory: %w", err)
	}
	expanded.WorkingDirectory = dir

	return expanded, nil
}

// expand leaves strings without template markers untouched.
func expand(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("argument").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}

	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, vars); err != nil {
		return "", err
	}
	return buffer.String(), nil
}
