package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-recipe-runner/internal/executor"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
)

// Process exit codes, one per failure class.
const (
	ExitInstalled   = 0
	ExitFailure     = 1
	ExitParseError  = 2
	ExitUnresolved  = 3
	ExitBuildError  = 4
	ExitTestFailure = 5
	ExitCancelled   = 6
)

// Lines of captured step output repeated in a failure report
const outputTailLines = 20

// ExitCode maps an error returned by a command onto the process exit code.
func ExitCode(err error) int {
	var (
		parseErr   *recipe.ParseError
		unresolved *recipe.UnresolvedDependencyError
		buildErr   *executor.BuildError
		testErr    *executor.TestFailure
		cancelErr  *executor.CancelledError
	)

	switch {
	case err == nil:
		return ExitInstalled
	case errors.As(err, &cancelErr):
		return ExitCancelled
	case errors.As(err, &parseErr):
		return ExitParseError
	case errors.As(err, &unresolved):
		return ExitUnresolved
	case errors.As(err, &buildErr):
		return ExitBuildError
	case errors.As(err, &testErr):
		return ExitTestFailure
	default:
		return ExitFailure
	}
}

// reportError prints an actionable description of err.
func reportError(w io.Writer, err error) {
	var (
		parseErr   *recipe.ParseError
		unresolved *recipe.UnresolvedDependencyError
		buildErr   *executor.BuildError
		testErr    *executor.TestFailure
	)

	fmt.Fprintf(w, "Error: %v\n", err)

	switch {
	case errors.As(err, &parseErr):
		for _, problem := range parseErr.Problems {
			fmt.Fprintf(w, "  - %s\n", problem)
		}
	case errors.As(err, &unresolved):
		fmt.Fprintln(w, "Missing dependencies:")
		for _, dep := range unresolved.Missing {
			fmt.Fprintf(w, "  - %s (%s)\n", dep.Name, dep.Phase)
		}
		fmt.Fprintln(w, "Install them, or pass --with <name> if they are provided some other way.")
	case errors.As(err, &buildErr):
		writeOutputTail(w, buildErr.Output)
	case errors.As(err, &testErr):
		writeOutputTail(w, testErr.Output)
	}
}

func writeOutputTail(w io.Writer, output []byte) {
	text := strings.TrimRight(string(output), "\n")
	if text == "" {
		return
	}

	lines := strings.Split(text, "\n")
	if len(lines) > outputTailLines {
		fmt.Fprintf(w, "Last %d lines of output:\n", outputTailLines)
		lines = lines[len(lines)-outputTailLines:]
	} else {
		fmt.Fprintln(w, "Output:")
	}
	for _, line := range lines {
		fmt.Fprintf(w, "  | %s\n", line)
	}
}
