//go:build unix

package tooling

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-recipe-runner/internal/config"
	"github.com/deploymenttheory/go-recipe-runner/internal/executor"
	"github.com/deploymenttheory/go-recipe-runner/internal/receipt"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/deploymenttheory/go-recipe-runner/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup points every on-disk location of the configuration into a temp dir.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("RECIPE_RUNNER_LOG_FILE", filepath.Join(dir, "runner.log"))
	t.Setenv("RECIPE_RUNNER_BUILD_WORK_ROOT", filepath.Join(dir, "work"))
	t.Setenv("RECIPE_RUNNER_BUILD_STEP_LOG_DIR", filepath.Join(dir, "steps"))
	t.Setenv("RECIPE_RUNNER_BUILD_PARALLELISM", "2")
	t.Setenv("RECIPE_RUNNER_BUILD_INSTALL_PREFIX", filepath.Join(dir, "prefix"))
	t.Setenv("RECIPE_RUNNER_SOURCE_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("RECIPE_RUNNER_DEPENDENCIES_SEARCH_PATH", "false")
	t.Setenv("RECIPE_RUNNER_RECEIPT_DIR", filepath.Join(dir, "receipts"))
	t.Setenv("RECIPE_RUNNER_REGISTRY_PATH", filepath.Join(dir, "registry.db"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0755))
	require.NoError(t, Initialize(InitOptions{SuppressLog: true}))
	require.Equal(t, 2, config.Instance.Build.Parallelism)
	return dir
}

func writeRecipe(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestInstallRecipe(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
name: hello
version: "1.0"
build_steps:
  - command: "true"
test_steps:
  - command: "true"
`)

	report, err := InstallRecipe(context.Background(), path, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, executor.StateInstalled, report.State)
	assert.Equal(t, 2, report.Result.StepsRun)
	assert.Equal(t, report.Invocation, report.Result.Invocation)

	require.NotEmpty(t, report.ReceiptPath)
	rc, err := receipt.Read(report.ReceiptPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", rc.Name)
	assert.Equal(t, 2, rc.Parallelism)

	entries, err := History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, registry.StatusInstalled, entries[0].Status)
	assert.Equal(t, report.Invocation, entries[0].Invocation)

	work, err := os.ReadDir(filepath.Join(dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, work)
}

func TestInstallRecipeBuildFailureIsRecorded(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
name: broken
build_steps:
  - command: "true"
  - command: "false"
`)

	report, err := InstallRecipe(context.Background(), path, InstallOptions{})
	var buildErr *executor.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.Index)
	assert.Equal(t, executor.StateBuildFailed, report.State)
	assert.Empty(t, report.ReceiptPath)

	entries, err := History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "build_failed", entries[0].Status)
	assert.Equal(t, 2, entries[0].StepsRun)
	assert.NotEmpty(t, entries[0].Error)
}

func TestInstallRecipeUnresolvedDependency(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
name: eos
dependencies:
  - name: openssl
    phase: build
build_steps:
  - command: "true"
`)

	_, err := InstallRecipe(context.Background(), path, InstallOptions{})
	var unresolved *recipe.UnresolvedDependencyError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"openssl"}, unresolved.Names())

	entries, err := History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing was executed")

	_, err = InstallRecipe(context.Background(), path, InstallOptions{With: []string{"openssl"}})
	require.NoError(t, err)
}

func TestInstallRecipeInstalledRecipesSatisfyDependencies(t *testing.T) {
	dir := setup(t)
	dep := writeRecipe(t, dir, `
name: openssl
build_steps:
  - command: "true"
`)
	_, err := InstallRecipe(context.Background(), dep, InstallOptions{})
	require.NoError(t, err)

	r, err := ValidateRecipe(context.Background(), writeRecipe(t, dir, `
name: eos
dependencies:
  - name: openssl
    phase: run
build_steps:
  - command: "true"
`), nil)
	require.NoError(t, err)
	assert.Equal(t, "eos", r.Name)
}

func TestInstallRecipeParseError(t *testing.T) {
	dir := setup(t)
	path := writeRecipe(t, dir, `
build_steps:
  - command: "true"
`)

	_, err := InstallRecipe(context.Background(), path, InstallOptions{})
	var parseErr *recipe.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestInstallRecipeFetchesLocalSource(t *testing.T) {
	dir := setup(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hello-src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-src", "Makefile"), []byte("all:\n"), 0644))

	path := writeRecipe(t, dir, `
name: hello
source:
  url: hello-src
build_steps:
  - command: test
    template: true
    arguments: ["-f", "{{ .source_dir }}/Makefile"]
`)

	_, err := InstallRecipe(context.Background(), path, InstallOptions{})
	require.NoError(t, err)

	_, err = InstallRecipe(context.Background(), path, InstallOptions{NoFetch: true})
	var buildErr *executor.BuildError
	require.ErrorAs(t, err, &buildErr)
}
