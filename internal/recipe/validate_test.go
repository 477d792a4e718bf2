package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nameSet map[string]bool

func (s nameSet) Has(name string) bool { return s[name] }

func TestValidateAllPresent(t *testing.T) {
	available := nameSet{"cmake": true, "readline": true, "openssl": true}
	assert.NoError(t, Validate(eosRecipe(), available))
}

func TestValidateMissingOpenSSL(t *testing.T) {
	r := &Recipe{
		Name:         "x",
		Dependencies: []Dependency{{Name: "openssl", Phase: PhaseBuild}},
		BuildSteps:   []Step{{Command: "true"}},
	}

	err := Validate(r, nameSet{})
	var ude *UnresolvedDependencyError
	require.True(t, errors.As(err, &ude))
	assert.Equal(t, []string{"openssl"}, ude.Names())
	assert.Contains(t, err.Error(), "openssl (build)")
}

func TestValidateReportsEveryMissingDependency(t *testing.T) {
	err := Validate(eosRecipe(), nameSet{"readline": true})

	var ude *UnresolvedDependencyError
	require.True(t, errors.As(err, &ude))
	assert.Equal(t, []Dependency{
		{Name: "cmake", Phase: PhaseBuild},
		{Name: "openssl", Phase: PhaseBuild},
		{Name: "openssl", Phase: PhaseRun},
	}, ude.Missing)
	assert.Equal(t, []string{"cmake", "openssl"}, ude.Names())
}

func TestValidateIsPure(t *testing.T) {
	r := eosRecipe()
	available := nameSet{"cmake": true}

	first := Validate(r, available)
	second := Validate(r, available)
	assert.Equal(t, first, second)
	assert.Equal(t, eosRecipe(), r, "validate must not modify the recipe")
	assert.Equal(t, nameSet{"cmake": true}, available)
}

func TestValidateNilAvailability(t *testing.T) {
	r := &Recipe{Name: "x", BuildSteps: []Step{{Command: "true"}}}
	assert.NoError(t, Validate(r, nil))

	r.Dependencies = []Dependency{{Name: "a", Phase: PhaseRun}}
	assert.Error(t, Validate(r, nil))
}

func TestValidatePhase(t *testing.T) {
	available := nameSet{"cmake": true, "readline": true, "openssl": false}
	r := eosRecipe()

	err := ValidatePhase(r, available, PhaseRun)
	var ude *UnresolvedDependencyError
	require.True(t, errors.As(err, &ude))
	assert.Equal(t, []Dependency{{Name: "openssl", Phase: PhaseRun}}, ude.Missing)

	r.Dependencies = r.Dependencies[:2]
	assert.NoError(t, ValidatePhase(r, available, PhaseBuild))
}

func TestDependencyHelpers(t *testing.T) {
	r := eosRecipe()
	assert.Equal(t, []string{"cmake", "readline", "openssl"}, r.DependenciesFor(PhaseBuild))
	assert.Equal(t, []string{"openssl"}, r.DependenciesFor(PhaseRun))
	assert.Equal(t, []string{"cmake", "readline", "openssl"}, r.DependencyNames())
}
