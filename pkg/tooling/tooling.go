// Package tooling is the embeddable API of the recipe runner. It wires the
// configuration, dependency discovery, source fetching, the executor, the
// install registry and receipts together the same way the CLI does.
package tooling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/vtutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/config"
	"github.com/deploymenttheory/go-recipe-runner/internal/deps"
	"github.com/deploymenttheory/go-recipe-runner/internal/executor"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/internal/receipt"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/deploymenttheory/go-recipe-runner/internal/registry"
	"github.com/deploymenttheory/go-recipe-runner/internal/source"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X ...tooling.Version=..."
var Version = "0.1.0-dev"

// InitOptions contains options for initializing the tooling API
type InitOptions struct {
	ConfigFile  string // Path to configuration file
	Debug       bool   // Enable debug logging
	LogFormat   string // Log format: "human" or "json"
	LogFile     string // Path to log file
	SuppressLog bool   // Suppress all logging

	// Bind lets the caller attach command-line flags to the configuration
	// before it is read into config.Instance
	Bind func(v *viper.Viper) error
}

// DefaultOptions returns the default initialization options
func DefaultOptions() InitOptions {
	return InitOptions{
		LogFormat: "human",
	}
}

var initialized bool

// Initialize loads the configuration and sets up logging. Calling it again
// re-applies bindings and logging options to the already loaded
// configuration.
func Initialize(options InitOptions) error {
	if err := config.Initialize(options.ConfigFile); err != nil {
		return err
	}

	if options.Bind != nil {
		if err := options.Bind(config.Viper()); err != nil {
			return fmt.Errorf("binding flags: %w", err)
		}
	}
	if err := config.Reload(); err != nil {
		return err
	}

	if options.Debug {
		config.Instance.Debug = true
	}
	if options.LogFormat != "" {
		config.Instance.LogFormat = options.LogFormat
	}
	if options.LogFile != "" {
		config.Instance.LogFile = options.LogFile
	}

	if !options.SuppressLog {
		logConfig := logger.DefaultConfig()
		logConfig.Debug = config.Instance.Debug
		logConfig.LogFormat = config.Instance.LogFormat
		logConfig.LogFile = config.Instance.LogFile
		if err := logger.InitLogger(logConfig); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.LogDebug("Tooling API initialized", map[string]interface{}{
			"config_file": config.ConfigFile,
			"debug":       config.Instance.Debug,
			"log_format":  config.Instance.LogFormat,
		})
	}

	initialized = true
	return nil
}

func ensureInitialized() error {
	if initialized {
		return nil
	}
	if err := Initialize(DefaultOptions()); err != nil {
		return fmt.Errorf("failed to initialize tooling API: %w", err)
	}
	return nil
}

// InstallOptions are per-install overrides on top of config.Instance.
type InstallOptions struct {
	// Extra dependency names treated as available
	With []string

	// Template variables
	Variables map[string]string

	// Skip fetching the recipe source
	NoFetch bool

	// Pack the working directory into this archive before it is removed
	ArchiveWorkdir string

	// Live step output (optional)
	Output io.Writer
}

// InstallReport is what InstallRecipe produced, whatever the outcome.
type InstallReport struct {
	Recipe      *recipe.Recipe
	Result      *executor.InstallResult
	State       executor.State
	Invocation  string
	ReceiptPath string
}

// LoadRecipe parses the recipe at path.
func LoadRecipe(path string) (*recipe.Recipe, error) {
	return recipe.Load(path)
}

// ValidateRecipe loads the recipe at path and checks its dependencies
// against the current environment plus with.
func ValidateRecipe(ctx context.Context, path string, with []string) (*recipe.Recipe, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	r, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}

	reg := openRegistry()
	if reg != nil {
		defer reg.Close()
	}

	available := discover(ctx, r, with, reg)
	if err := recipe.Validate(r, available); err != nil {
		return r, err
	}
	return r, nil
}

// InstallRecipe loads, validates and executes the recipe at path, then
// records the outcome in the registry and writes a receipt on success.
// Registry and receipt failures are logged and never change the outcome.
func InstallRecipe(ctx context.Context, path string, opts InstallOptions) (*InstallReport, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	r, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}
	report := &InstallReport{Recipe: r, State: executor.StateLoaded}

	reg := openRegistry()
	if reg != nil {
		defer reg.Close()
	}

	available := discover(ctx, r, opts.With, reg)
	if err := recipe.Validate(r, available); err != nil {
		return report, err
	}

	cfg := config.Instance
	execOpts := executor.Options{
		Parallelism:          cfg.Build.Parallelism,
		InstallPrefix:        cfg.Build.InstallPrefix,
		KeepWorkingDirectory: cfg.Build.KeepWorkingDirectory,
		ArchivePath:          opts.ArchiveWorkdir,
		WorkRoot:             cfg.Build.WorkRoot,
		Timeout:              cfg.Build.Timeout,
		Variables:            opts.Variables,
		Available:            available,
		StepLogDir:           cfg.Build.StepLogDir,
		Output:               opts.Output,
		OnState: func(s executor.State) {
			report.State = s
			logger.LogDebug("Install state changed", map[string]interface{}{
				"recipe": r.Name,
				"state":  string(s),
			})
		},
	}
	if cfg.Source.Fetch && !opts.NoFetch {
		execOpts.Fetcher = newFetcher(path)
	}

	execOpts.Invocation = uuid.New().String()
	report.Invocation = execOpts.Invocation

	started := time.Now()
	result, execErr := executor.Execute(ctx, r, execOpts)
	report.Result = result
	report.State = executor.StateOf(execErr)

	if reg != nil {
		record(ctx, reg, r, execOpts.Invocation, execErr, started)
	}

	if execErr == nil && cfg.Receipt.Enabled {
		rc, err := receipt.New(r, result, cfg.Build.InstallPrefix, cfg.Build.Parallelism)
		if err == nil {
			report.ReceiptPath, err = receipt.Write(cfg.Receipt.Dir, cfg.Receipt.Format, rc)
		}
		if err != nil {
			logger.LogError("Failed to write install receipt", err, map[string]interface{}{
				"recipe": r.Name,
			})
		}
	}

	return report, execErr
}

// History returns the most recent install records.
func History(ctx context.Context, limit int) ([]registry.Entry, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	reg, err := registry.Open(config.Instance.Registry.Path)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	return reg.List(ctx, limit)
}

// GetVersion returns the current version of the tooling API
func GetVersion() string {
	return Version
}

// Shutdown flushes the logs
func Shutdown() error {
	if initialized {
		_ = logger.Sync()
	}
	return nil
}

func openRegistry() *registry.DB {
	path := config.Instance.Registry.Path
	if path == "" {
		return nil
	}
	reg, err := registry.Open(path)
	if err != nil {
		logger.LogWarn("Install registry unavailable", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil
	}
	return reg
}

func discover(ctx context.Context, r *recipe.Recipe, with []string, reg *registry.DB) deps.Set {
	cfg := config.Instance.Dependencies

	opts := deps.Options{
		Available:     append(append([]string{}, cfg.Available...), with...),
		Candidates:    r.DependencyNames(),
		SearchPath:    cfg.SearchPath,
		InstallPrefix: config.Instance.Build.InstallPrefix,
		PrefixOpt:     cfg.PrefixOpt,
	}
	if cfg.Registry && reg != nil {
		opts.Registry = reg
	}
	return deps.Discover(ctx, opts)
}

func newFetcher(recipePath string) *source.Fetcher {
	cfg := config.Instance

	baseDir := filepath.Dir(recipePath)
	if abs, err := fsutil.ToAbsPath(baseDir); err == nil {
		baseDir = abs
	}

	opts := source.Options{
		CacheDir: cfg.Source.CacheDir,
		Timeout:  cfg.Source.Timeout,
		Retries:  cfg.Source.Retries,
		BaseDir:  baseDir,
	}

	if cfg.Scan.Enabled {
		client, err := vtutil.NewClient(cfg.Scan.VirusTotalAPIKey)
		if err != nil {
			logger.LogWarn("Source scanning disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			opts.Scanner = &vtutil.Scanner{Lookup: client, MaxMalicious: cfg.Scan.MaxMalicious}
		}
	}

	return source.New(opts)
}

func record(ctx context.Context, reg *registry.DB, r *recipe.Recipe, invocation string, execErr error, started time.Time) {
	entry := registry.Entry{
		Invocation: invocation,
		Name:       r.Name,
		Version:    r.Version,
		Status:     string(executor.StateOf(execErr)),
		StepsRun:   stepsRun(r, execErr),
		Prefix:     config.Instance.Build.InstallPrefix,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}

	// recorded even when ctx is already cancelled
	if _, err := reg.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.LogError("Failed to record install", err, map[string]interface{}{
			"recipe": r.Name,
		})
	}
}

// stepsRun counts the steps started before execErr, including the failing one.
func stepsRun(r *recipe.Recipe, execErr error) int {
	var (
		buildErr  *executor.BuildError
		testErr   *executor.TestFailure
		cancelErr *executor.CancelledError
	)
	switch {
	case execErr == nil:
		return len(r.BuildSteps) + len(r.TestSteps)
	case errors.As(execErr, &buildErr):
		return buildErr.Index + 1
	case errors.As(execErr, &testErr):
		return len(r.BuildSteps) + testErr.Index + 1
	case errors.As(execErr, &cancelErr):
		if cancelErr.Index < 0 {
			return 0
		}
		if cancelErr.State == executor.StateTesting {
			return len(r.BuildSteps) + cancelErr.Index + 1
		}
		return cancelErr.Index + 1
	default:
		return 0
	}
}
