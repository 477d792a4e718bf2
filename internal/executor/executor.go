// Package executor runs a validated recipe: it fetches the source into a
// fresh scoped directory, runs the build steps there in order, runs the test
// steps in the caller's directory and reports exactly one outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/compressionutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/osutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/deploymenttheory/go-recipe-runner/internal/runner"
	"github.com/deploymenttheory/go-recipe-runner/internal/workdir"
	"github.com/google/uuid"
)

// State is a point in the lifecycle of one execution.
type State string

const (
	StateLoaded      State = "loaded"
	StateValidated   State = "validated"
	StateBuilding    State = "building"
	StateBuildFailed State = "build_failed"
	StateBuilt       State = "built"
	StateTesting     State = "testing"
	StateTestFailed  State = "test_failed"
	StateInstalled   State = "installed"
	StateCancelled   State = "cancelled"
)

// Fetcher materialises a recipe source in dest.
type Fetcher interface {
	Fetch(ctx context.Context, src recipe.Source, dest string) error
}

// Options configures one execution.
type Options struct {
	// Advisory, exposed to steps as the jobs variable; must be >= 1
	Parallelism int

	// Exposed to steps as the prefix variable
	InstallPrefix string

	KeepWorkingDirectory bool

	// When set, the scoped directory is packed into this archive before it is
	// released, whatever the outcome. The format follows the file name and
	// defaults to gzip.
	ArchivePath string

	// Parent of the scoped directory; empty means the system temp dir
	WorkRoot string

	// Zero means no limit. Expiry is reported as cancellation.
	Timeout time.Duration

	// User variables for argument templates
	Variables map[string]string

	// When set, build dependencies are re-checked before building and run
	// dependencies before testing
	Available recipe.Availability

	// When set and the recipe has a source URL, the source is fetched into
	// the scope before build step 0
	Fetcher Fetcher

	// Directory for the JSON-lines step log; empty disables it
	StepLogDir string

	// Live copy of step output (optional)
	Output io.Writer

	// Time a cancelled step gets between SIGTERM and SIGKILL
	GracePeriod time.Duration

	// Called on every state transition (optional)
	OnState func(State)

	// Invocation id for logs and the step log; generated when empty
	Invocation string
}

// InstallResult describes a successful execution.
type InstallResult struct {
	RecipeName string
	Version    string
	StepsRun   int

	Invocation string
	BuildSteps int
	TestSteps  int

	// Set only when the working directory was kept
	WorkingDirectory string

	// Path of the step log, if one was written
	StepLog string

	// Path of the working directory archive, if one was written
	Archive string

	Duration time.Duration
}

type execution struct {
	recipe     *recipe.Recipe
	opts       Options
	invocation string
	scope      *workdir.Scope
	log        *runner.StepLog
	vars       map[string]string
	state      State
	stepsRun   int
	packed     bool
}

// Execute runs r with opts. The error, if any, is one of
// *recipe.UnresolvedDependencyError, *BuildError, *TestFailure or
// *CancelledError, or a setup error wrapping a common sentinel. The scoped
// directory is gone when Execute returns unless it was kept.
func Execute(ctx context.Context, r *recipe.Recipe, opts Options) (*InstallResult, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil recipe", commonerrors.ErrInvalidArgument)
	}
	if opts.Parallelism < 1 {
		return nil, fmt.Errorf("%w: parallelism must be >= 1, got %d", commonerrors.ErrInvalidArgument, opts.Parallelism)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	invocation := opts.Invocation
	if invocation == "" {
		invocation = uuid.New().String()
	}

	e := &execution{
		recipe:     r,
		opts:       opts,
		invocation: invocation,
		state:      StateLoaded,
	}
	start := time.Now()

	if opts.Available != nil {
		if err := recipe.ValidatePhase(r, opts.Available, recipe.PhaseBuild); err != nil {
			return nil, err
		}
	}
	e.transition(StateValidated)

	if err := ctx.Err(); err != nil {
		return nil, e.cancelled(ctx, -1)
	}

	scope, err := workdir.Acquire(opts.WorkRoot, r.Name, opts.KeepWorkingDirectory)
	if err != nil {
		return nil, err
	}
	e.scope = scope
	defer func() {
		// archive and cleanup failures never replace the outcome
		e.archive()
		if err := scope.Release(); err != nil {
			logger.LogError("Failed to remove working directory", err, map[string]interface{}{
				"recipe": r.Name,
				"dir":    scope.Root,
			})
		}
	}()

	if opts.StepLogDir != "" {
		log, err := runner.OpenStepLog(opts.StepLogDir, e.invocation)
		if err != nil {
			logger.LogWarn("Step log disabled", map[string]interface{}{"error": err.Error()})
		} else {
			e.log = log
			defer e.log.Close()
		}
	}

	e.vars = recipe.MergeVariables(r.Variables, opts.Variables, map[string]string{
		recipe.VarName:      r.Name,
		recipe.VarVersion:   r.Version,
		recipe.VarPrefix:    opts.InstallPrefix,
		recipe.VarJobs:      strconv.Itoa(opts.Parallelism),
		recipe.VarBuildDir:  scope.BuildDir,
		recipe.VarSourceDir: scope.SourceDir,
		recipe.VarOS:        osutil.GetOSType(),
		recipe.VarArch:      osutil.GetArchitecture(),
	})

	logger.LogInfo("Starting install", map[string]interface{}{
		"recipe":      r.Name,
		"version":     r.Version,
		"invocation":  e.invocation,
		"build_steps": len(r.BuildSteps),
		"test_steps":  len(r.TestSteps),
		"dir":         scope.Root,
	})

	e.transition(StateBuilding)
	if err := e.fetch(ctx); err != nil {
		e.failed(err)
		return nil, err
	}
	if err := e.build(ctx); err != nil {
		e.failed(err)
		return nil, err
	}

	if opts.Available != nil {
		if err := recipe.ValidatePhase(r, opts.Available, recipe.PhaseRun); err != nil {
			var unresolved *recipe.UnresolvedDependencyError
			if errors.As(err, &unresolved) {
				err = &RunDependencyError{Recipe: r.Name, Err: unresolved}
			}
			e.failed(err)
			return nil, err
		}
	}

	e.transition(StateTesting)
	if err := e.test(ctx); err != nil {
		e.failed(err)
		return nil, err
	}
	e.transition(StateInstalled)

	result := &InstallResult{
		RecipeName: r.Name,
		Version:    r.Version,
		StepsRun:   e.stepsRun,
		Invocation: e.invocation,
		BuildSteps: len(r.BuildSteps),
		TestSteps:  len(r.TestSteps),
		Duration:   time.Since(start),
	}
	if opts.KeepWorkingDirectory {
		result.WorkingDirectory = scope.Root
	}
	if e.log != nil {
		result.StepLog = e.log.Path
	}
	if e.archive() {
		result.Archive = opts.ArchivePath
	}

	logger.LogInfo("Install completed", map[string]interface{}{
		"recipe":    r.Name,
		"version":   r.Version,
		"steps_run": result.StepsRun,
		"duration":  result.Duration.String(),
	})

	return result, nil
}

// archive packs the scope into ArchivePath and reports whether it did.
func (e *execution) archive() bool {
	dst := e.opts.ArchivePath
	if dst == "" || e.packed {
		return false
	}
	e.packed = true

	format, ok := compressionutil.FormatForName(dst)
	if !ok {
		format = compressionutil.FormatGzip
	}
	if err := compressionutil.CreateArchive(e.scope.Root, dst, format); err != nil {
		logger.LogError("Failed to archive working directory", err, map[string]interface{}{
			"recipe":  e.recipe.Name,
			"archive": dst,
		})
		return false
	}
	logger.LogInfo("Archived working directory", map[string]interface{}{
		"recipe":  e.recipe.Name,
		"archive": dst,
		"format":  string(format),
	})
	return true
}

func (e *execution) fetch(ctx context.Context) error {
	src := e.recipe.Source
	if e.opts.Fetcher == nil || src.URL == "" {
		return nil
	}

	logger.LogInfo("Fetching source", map[string]interface{}{
		"url":    src.URL,
		"branch": src.Branch,
	})

	if err := e.opts.Fetcher.Fetch(ctx, src, e.scope.SourceDir); err != nil {
		if ctx.Err() != nil {
			return e.cancelled(ctx, -1)
		}
		return &BuildError{
			Recipe:     e.recipe.Name,
			Stage:      StageFetch,
			Index:      -1,
			Command:    src.URL,
			ExitStatus: -1,
			Output:     []byte(err.Error()),
			Err:        err,
		}
	}
	return nil
}

func (e *execution) build(ctx context.Context) error {
	for i, step := range e.recipe.BuildSteps {
		expanded, err := recipe.ExpandStep(step, e.vars)
		if err != nil {
			return e.buildError(i, step, -1, nil, err)
		}

		dir, err := e.scope.Resolve(expanded.WorkingDirectory)
		if err != nil {
			return e.buildError(i, expanded, -1, nil, err)
		}

		res, err := e.run(ctx, "build", i, expanded, dir)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelled(ctx, i)
			}
			return e.buildError(i, expanded, -1, outputOf(res), err)
		}
		if !res.Success() {
			return e.buildError(i, expanded, res.ExitStatus, res.Output, nil)
		}
	}
	return nil
}

func (e *execution) test(ctx context.Context) error {
	for i, step := range e.recipe.TestSteps {
		expanded, err := recipe.ExpandStep(step, e.vars)
		if err != nil {
			return e.testFailure(i, step, -1, nil, err)
		}

		// Test steps run against the installed result, from the caller's
		// directory unless the step says otherwise
		res, err := e.run(ctx, "test", i, expanded, expanded.WorkingDirectory)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelled(ctx, i)
			}
			return e.testFailure(i, expanded, -1, outputOf(res), err)
		}
		if !res.Success() {
			return e.testFailure(i, expanded, res.ExitStatus, res.Output, nil)
		}
	}
	return nil
}

func (e *execution) run(ctx context.Context, stage string, index int, step recipe.Step, dir string) (*runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	label := fmt.Sprintf("%s[%d]", stage, index)
	logger.LogInfo(fmt.Sprintf("Running %s step %d", stage, index), map[string]interface{}{
		"command":   step.Command,
		"arguments": step.Arguments,
		"dir":       dir,
	})

	e.stepsRun++
	res, err := runner.Run(ctx, runner.Invocation{
		Label:       label,
		Command:     step.Command,
		Arguments:   step.Arguments,
		Dir:         dir,
		Output:      e.opts.Output,
		Log:         e.log,
		GracePeriod: e.opts.GracePeriod,
	})
	if res != nil {
		logger.LogDebug(fmt.Sprintf("Finished %s step %d", stage, index), map[string]interface{}{
			"exit_status": res.ExitStatus,
			"duration":    res.Duration.String(),
		})
	}
	return res, err
}

func (e *execution) transition(state State) {
	e.state = state
	if e.opts.OnState != nil {
		e.opts.OnState(state)
	}
}

func (e *execution) failed(err error) {
	e.transition(StateOf(err))
	logger.LogError("Install failed", err, map[string]interface{}{
		"recipe":     e.recipe.Name,
		"invocation": e.invocation,
	})
}

func (e *execution) cancelled(ctx context.Context, index int) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return &CancelledError{
		Recipe: e.recipe.Name,
		State:  e.state,
		Index:  index,
		Cause:  cause,
	}
}

func (e *execution) buildError(index int, step recipe.Step, status int, output []byte, err error) error {
	return &BuildError{
		Recipe:     e.recipe.Name,
		Stage:      StageBuild,
		Index:      index,
		Command:    step.Command,
		Arguments:  step.Arguments,
		ExitStatus: status,
		Output:     output,
		Err:        err,
	}
}

func (e *execution) testFailure(index int, step recipe.Step, status int, output []byte, err error) error {
	return &TestFailure{
		Recipe:     e.recipe.Name,
		Index:      index,
		Command:    step.Command,
		Arguments:  step.Arguments,
		ExitStatus: status,
		Output:     output,
		Err:        err,
	}
}

func outputOf(res *runner.Result) []byte {
	if res == nil {
		return nil
	}
	return res.Output
}
