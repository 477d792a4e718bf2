package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding maps a command-line flag onto a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// Flags that override configuration when present on the running command
var bindings = []flagBinding{
	{"debug", "debug"},
	{"log_format", "log-format"},
	{"build.parallelism", "parallelism"},
	{"build.install_prefix", "prefix"},
	{"build.keep_working_directory", "keep-workdir"},
	{"build.timeout", "timeout"},
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "recipe-runner",
		Short: "Build and install software from declarative recipes",
		Long: `recipe-runner turns a declarative recipe (name, version, source,
dependencies with build/run phases, ordered build steps and test steps)
into a verified installation.

Build steps run one after another in a fresh working directory that is
removed afterwards; test steps then check the installed result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return tooling.Initialize(tooling.InitOptions{
				ConfigFile: cfgFile,
				Bind: func(v *viper.Viper) error {
					return bindFlags(v, cmd.Flags())
				},
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = tooling.Shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")

	rootCmd.AddCommand(
		newInstallCmd(),
		newValidateCmd(),
		newShowCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, b := range bindings {
		flag := flags.Lookup(b.flag)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		logger.LogDebug("Command execution failed", map[string]interface{}{
			"error": err.Error(),
		})
		return ExitCode(err)
	}
	return ExitInstalled
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recipe-runner %s\n", tooling.GetVersion())
		},
	}
}
