package recipe

// Availability answers whether a dependency name can be resolved in the
// current environment.
type Availability interface {
	Has(name string) bool
}

// Validate checks every declared dependency against available and reports
// all missing ones together. It is pure and may be called repeatedly.
func Validate(r *Recipe, available Availability) error {
	return validate(r, available, "")
}

// ValidatePhase is Validate restricted to the dependencies of one phase.
func ValidatePhase(r *Recipe, available Availability, phase Phase) error {
	return validate(r, available, phase)
}

func validate(r *Recipe, available Availability, phase Phase) error {
	var missing []Dependency
	for _, dep := range r.Dependencies {
		if phase != "" && dep.Phase != phase {
			continue
		}
		if available == nil || !available.Has(dep.Name) {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &UnresolvedDependencyError{Recipe: r.Name, Missing: missing}
	}
	return nil
}
