package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/stretchr/testify/assert"
)

func TestStateOf(t *testing.T) {
	unresolved := &recipe.UnresolvedDependencyError{Recipe: "x", Missing: []recipe.Dependency{{Name: "a", Phase: recipe.PhaseRun}}}

	tests := []struct {
		name string
		err  error
		want State
	}{
		{"success", nil, StateInstalled},
		{"cancelled", &CancelledError{Recipe: "x", Index: -1, Cause: context.Canceled}, StateCancelled},
		{"build", &BuildError{Recipe: "x"}, StateBuildFailed},
		{"test", &TestFailure{Recipe: "x"}, StateTestFailed},
		{"run dependency after build", &RunDependencyError{Recipe: "x", Err: unresolved}, StateBuilt},
		{"unresolved before build", unresolved, StateLoaded},
		{"parse", &recipe.ParseError{Problems: []string{"name is required"}}, StateLoaded},
		{"wrapped test", fmt.Errorf("install: %w", &TestFailure{Recipe: "x"}), StateTestFailed},
		{"setup", errors.New("work root unusable"), StateBuildFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.err))
		})
	}
}
