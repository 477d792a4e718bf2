package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var with []string

	validateCmd := &cobra.Command{
		Use:   "validate <recipe>",
		Short: "Check a recipe and its dependencies without building",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := tooling.ValidateRecipe(cmd.Context(), args[0], with)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid: %d build steps, %d test steps, %d dependencies\n",
				r.Name, r.Version, len(r.BuildSteps), len(r.TestSteps), len(r.Dependencies))
			return nil
		},
	}

	validateCmd.Flags().StringSliceVar(&with, "with", nil, "Treat a dependency as available (repeatable)")

	return validateCmd
}
