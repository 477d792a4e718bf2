package cmd

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/osutil"
	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/spf13/cobra"
)

func newInstallCmd() *cobra.Command {
	var opts tooling.InstallOptions
	var verbose bool

	installCmd := &cobra.Command{
		Use:   "install <recipe>",
		Short: "Build, install and test a recipe",
		Long: `Load the recipe, check that its build and run dependencies are available,
run the build steps in a fresh working directory and then run the test steps.

Exit codes: 0 installed, 2 parse error, 3 unresolved dependency,
4 build error, 5 test failure, 6 cancelled, 1 anything else.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				opts.Output = cmd.OutOrStdout()
			}

			report, err := tooling.InstallRecipe(cmd.Context(), args[0], opts)
			if err != nil {
				if report != nil && report.Invocation != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Invocation: %s (state %s)\n", report.Invocation, report.State)
				}
				return err
			}

			out := cmd.OutOrStdout()
			result := report.Result
			fmt.Fprintf(out, "Installed %s %s: %d build and %d test steps in %s\n",
				result.RecipeName, result.Version, result.BuildSteps, result.TestSteps,
				result.Duration.Round(time.Millisecond))
			if result.WorkingDirectory != "" {
				fmt.Fprintf(out, "Working directory kept at %s\n", result.WorkingDirectory)
			}
			if result.Archive != "" {
				fmt.Fprintf(out, "Working directory archived to %s\n", result.Archive)
			}
			if result.StepLog != "" {
				fmt.Fprintf(out, "Step log: %s\n", result.StepLog)
			}
			if report.ReceiptPath != "" {
				fmt.Fprintf(out, "Receipt: %s\n", report.ReceiptPath)
			}
			return nil
		},
	}

	flags := installCmd.Flags()
	flags.IntP("parallelism", "j", osutil.GetNumCPU(), "Parallelism hint passed to build steps")
	flags.String("prefix", "/usr/local", "Install prefix")
	flags.Bool("keep-workdir", false, "Keep the working directory after the build")
	flags.Duration("timeout", 0, "Abort the install after this long (0 means no limit)")
	flags.StringSliceVar(&opts.With, "with", nil, "Treat a dependency as available (repeatable)")
	flags.StringToStringVar(&opts.Variables, "set", nil, "Set a template variable (key=value, repeatable)")
	flags.StringVar(&opts.ArchiveWorkdir, "archive-workdir", "", "Pack the working directory into this archive (.tar.gz, .tar.xz, .zip, ...)")
	flags.BoolVar(&opts.NoFetch, "no-fetch", false, "Do not fetch the recipe source")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Stream step output to stdout")

	return installCmd
}
