package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// ParseError reports a malformed recipe. It is returned before any side
// effect and is never recoverable by retrying.
type ParseError struct {
	// Source is the path or label of the recipe input
	Source string

	// Problems lists every structural problem found
	Problems []string

	// Err is the underlying decoder error, if decoding failed outright
	Err error
}

func (e *ParseError) Error() string {
	label := e.Source
	if label == "" {
		label = "recipe"
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("parse %s: %s", label, e.Problems[0])
	}
	return fmt.Sprintf("parse %s: %d problems: %s", label, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// UnresolvedDependencyError lists every dependency the environment cannot
// provide, so that all of them can be installed in one pass.
type UnresolvedDependencyError struct {
	Recipe  string
	Missing []Dependency
}

func (e *UnresolvedDependencyError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, dep := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", dep.Name, dep.Phase))
	}
	return fmt.Sprintf("recipe %s: unresolved dependencies: %s", e.Recipe, strings.Join(parts, ", "))
}

// Names returns the sorted, distinct names of the missing dependencies.
func (e *UnresolvedDependencyError) Names() []string {
	seen := make(map[string]struct{}, len(e.Missing))
	var names []string
	for _, dep := range e.Missing {
		if _, ok := seen[dep.Name]; ok {
			continue
		}
		seen[dep.Name] = struct{}{}
		names = append(names, dep.Name)
	}
	sort.Strings(names)
	return names
}
