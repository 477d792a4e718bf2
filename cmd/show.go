package cmd

import (
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var format string

	showCmd := &cobra.Command{
		Use:   "show <recipe>",
		Short: "Print a recipe in normalized form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := recipe.ParseFormat(format)
			if err != nil {
				return err
			}

			r, err := tooling.LoadRecipe(args[0])
			if err != nil {
				return err
			}

			data, err := recipe.Marshal(r, outFormat)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	showCmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json or toml")

	return showCmd
}
