package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
)

// Stages a BuildError can come from.
const (
	StageFetch = "fetch"
	StageBuild = "build"
)

// BuildError reports the first build step that did not succeed. Index is -1
// when the source fetch failed before any step ran.
type BuildError struct {
	Recipe     string
	Stage      string
	Index      int
	Command    string
	Arguments  []string
	ExitStatus int
	Output     []byte
	Err        error
}

func (e *BuildError) Error() string {
	if e.Stage == StageFetch {
		return fmt.Sprintf("recipe %s: fetching source failed: %v", e.Recipe, e.Err)
	}
	msg := fmt.Sprintf("recipe %s: build step %d (%s) failed with exit status %d",
		e.Recipe, e.Index, commandLine(e.Command, e.Arguments), e.ExitStatus)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TestFailure reports the first test step that did not succeed after a
// successful build.
type TestFailure struct {
	Recipe     string
	Index      int
	Command    string
	Arguments  []string
	ExitStatus int
	Output     []byte
	Err        error
}

func (e *TestFailure) Error() string {
	msg := fmt.Sprintf("recipe %s: test step %d (%s) failed with exit status %d",
		e.Recipe, e.Index, commandLine(e.Command, e.Arguments), e.ExitStatus)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TestFailure) Unwrap() error {
	return e.Err
}

// CancelledError is returned when the context ends mid-execution. State is
// where the execution was when it stopped and Index the step that was
// running, or -1.
type CancelledError struct {
	Recipe string
	State  State
	Index  int
	Cause  error
}

func (e *CancelledError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("recipe %s: cancelled while %s (step %d): %v", e.Recipe, e.State, e.Index, e.Cause)
	}
	return fmt.Sprintf("recipe %s: cancelled while %s: %v", e.Recipe, e.State, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// RunDependencyError reports run dependencies found missing after a
// successful build, before any test step ran. It unwraps to the
// *recipe.UnresolvedDependencyError.
type RunDependencyError struct {
	Recipe string
	Err    *recipe.UnresolvedDependencyError
}

func (e *RunDependencyError) Error() string {
	return fmt.Sprintf("recipe %s: built, but cannot test: %v", e.Recipe, e.Err)
}

func (e *RunDependencyError) Unwrap() error {
	return e.Err
}

// StateOf maps the outcome of Execute onto the state the execution ended in.
func StateOf(err error) State {
	var (
		buildErr   *BuildError
		testErr    *TestFailure
		cancelErr  *CancelledError
		runDepErr  *RunDependencyError
		unresolved *recipe.UnresolvedDependencyError
		parseErr   *recipe.ParseError
	)

	switch {
	case err == nil:
		return StateInstalled
	case errors.As(err, &cancelErr):
		return StateCancelled
	case errors.As(err, &buildErr):
		return StateBuildFailed
	case errors.As(err, &testErr):
		return StateTestFailed
	case errors.As(err, &runDepErr):
		return StateBuilt
	case errors.As(err, &unresolved), errors.As(err, &parseErr):
		return StateLoaded
	default:
		// setup failures such as an unusable work root
		return StateBuildFailed
	}
}

func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
