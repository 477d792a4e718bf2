//go:build unix

package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-recipe-runner/internal/executor"
	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("RECIPE_RUNNER_LOG_FILE", filepath.Join(dir, "runner.log"))
	t.Setenv("RECIPE_RUNNER_BUILD_WORK_ROOT", filepath.Join(dir, "work"))
	t.Setenv("RECIPE_RUNNER_BUILD_STEP_LOG_DIR", filepath.Join(dir, "steps"))
	t.Setenv("RECIPE_RUNNER_BUILD_INSTALL_PREFIX", filepath.Join(dir, "prefix"))
	t.Setenv("RECIPE_RUNNER_SOURCE_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("RECIPE_RUNNER_DEPENDENCIES_SEARCH_PATH", "false")
	t.Setenv("RECIPE_RUNNER_RECEIPT_DIR", filepath.Join(dir, "receipts"))
	t.Setenv("RECIPE_RUNNER_REGISTRY_PATH", filepath.Join(dir, "registry.db"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0755))
	return dir
}

func writeRecipe(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

const helloRecipe = `
name: hello
version: "1.0"
build_steps:
  - command: echo
    template: true
    arguments: ["building {{.name}}"]
test_steps:
  - command: "true"
`

func TestVersionCommand(t *testing.T) {
	setup(t)

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "recipe-runner "+tooling.GetVersion()+"\n", out)
}

func TestValidateCommand(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, helloRecipe)

	out, _, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "hello 1.0 is valid: 1 build steps, 1 test steps")
}

func TestValidateCommandUnresolved(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
name: eos
dependencies:
  - name: definitely-not-installed
    phase: build
build_steps:
  - command: "true"
`)

	_, _, err := run(t, "validate", path)
	assert.Equal(t, ExitUnresolved, ExitCode(err))

	_, _, err = run(t, "validate", "--with", "definitely-not-installed", path)
	assert.NoError(t, err)
}

func TestShowCommandJSON(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, helloRecipe)

	out, _, err := run(t, "show", "--format", "json", path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "hello", decoded["name"])
}

func TestShowCommandParseError(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, "version: \"1.0\"\n")

	_, _, err := run(t, "show", path)
	assert.Equal(t, ExitParseError, ExitCode(err))
}

func TestInstallCommand(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, helloRecipe)

	out, _, err := run(t, "install", "--verbose", path)
	require.NoError(t, err)
	assert.Contains(t, out, "building hello")
	assert.Contains(t, out, "Installed hello 1.0: 1 build and 1 test steps")
	assert.Contains(t, out, "Receipt: ")

	out, _, err = run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, string(executor.StateInstalled))
}

func TestInstallCommandExitCodes(t *testing.T) {
	dir := setup(t)

	path := writeRecipe(t, dir, `
name: broken
build_steps:
  - command: "false"
`)
	_, stderr, err := run(t, "install", path)
	assert.Equal(t, ExitBuildError, ExitCode(err))
	assert.Contains(t, stderr, "Invocation: ")

	path = writeRecipe(t, dir, `
name: untested
build_steps:
  - command: "true"
test_steps:
  - command: "false"
`)
	_, _, err = run(t, "install", path)
	assert.Equal(t, ExitTestFailure, ExitCode(err))
}

func TestInstallCommandSetVariable(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
name: vars
build_steps:
  - command: echo
    template: true
    arguments: ["greeting={{.greeting}}"]
`)

	out, _, err := run(t, "install", "-v", "--set", "greeting=hi", path)
	require.NoError(t, err)
	assert.Contains(t, out, "greeting=hi")
}
