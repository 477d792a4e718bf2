// Package runner executes a single recipe step as an external process.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
)

// DefaultGracePeriod is how long a cancelled step gets between SIGTERM and
// SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// Exit statuses reported for processes that never ran.
const (
	ExitNotExecutable = 126
	ExitNotFound      = 127
)

// Invocation describes one process to run.
type Invocation struct {
	// Label names the step in logs, e.g. "build[0]"
	Label string

	Command   string
	Arguments []string

	// Dir is the working directory; empty means the caller's
	Dir string

	// Output receives a live copy of the combined output (optional)
	Output io.Writer

	// Log records the output as JSON lines (optional)
	Log *StepLog

	// GracePeriod overrides DefaultGracePeriod
	GracePeriod time.Duration
}

// Result is what the executor observes of a finished process.
type Result struct {
	ExitStatus int
	Output     []byte
	Duration   time.Duration
}

// Success reports a zero exit status.
func (r *Result) Success() bool {
	return r.ExitStatus == 0
}

// Run starts the invocation and waits for it. A non-zero exit is not an
// error; the error return is reserved for cancellation, in which case the
// process group has been terminated and the partial Result is returned too.
// Run never starts a process when ctx is already done.
func Run(ctx context.Context, inv Invocation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var combined lockedBuffer
	stdout := io.MultiWriter(&combined, inv.Log.Writer(inv.Label, "stdout"))
	stderr := io.MultiWriter(&combined, inv.Log.Writer(inv.Label, "stderr"))
	if inv.Output != nil {
		live := &lockedWriter{w: inv.Output}
		stdout = io.MultiWriter(stdout, live)
		stderr = io.MultiWriter(stderr, live)
	}

	grace := inv.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	// The child gets the write ends as files, so Wait returns when the step
	// process exits even if something it started still holds the pipes.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := exec.Command(inv.Command, inv.Arguments...)
	cmd.Dir = inv.Dir
	cmd.Stdout = outW
	cmd.Stderr = errW
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		status := ExitNotExecutable
		if errors.Is(err, exec.ErrNotFound) || isNotExist(err) {
			status = ExitNotFound
		}
		msg := []byte(err.Error() + "\n")
		_, _ = stderr.Write(msg)
		return &Result{ExitStatus: status, Output: combined.Bytes(), Duration: time.Since(start)}, nil
	}
	closeAll(outW, errW)

	var copying sync.WaitGroup
	copying.Add(2)
	go copyStream(&copying, stdout, outR)
	go copyStream(&copying, stderr, errR)

	logger.LogDebug("Started step process", map[string]interface{}{
		"step":    inv.Label,
		"command": inv.Command,
		"pid":     cmd.Process.Pid,
		"dir":     inv.Dir,
	})

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
		drain(inv.Label, cmd, &copying, grace, outR, errR)
	case <-ctx.Done():
		terminate(cmd, done, grace)
		drain(inv.Label, cmd, &copying, grace, outR, errR)
		return &Result{
			ExitStatus: exitStatus(cmd.ProcessState),
			Output:     combined.Bytes(),
			Duration:   time.Since(start),
		}, fmt.Errorf("%s terminated: %w", inv.Command, context.Cause(ctx))
	}

	result := &Result{
		Output:   combined.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitStatus = 0
	case errors.As(waitErr, &exitErr):
		result.ExitStatus = exitStatus(exitErr.ProcessState)
	default:
		return result, fmt.Errorf("wait for %s: %w", inv.Command, waitErr)
	}

	return result, nil
}

// terminate asks the process group to stop, escalating to SIGKILL when the
// grace period runs out. It returns once the process has been reaped.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	signalGroup(cmd, false)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		signalGroup(cmd, true)
		<-done
	}
}

// drain runs after the step process has exited. Anything it left behind in
// its process group is asked to stop, and output is collected until the
// pipes close. Pipes still held open after grace (daemons that left the
// group) are closed from this side.
func drain(label string, cmd *exec.Cmd, copying *sync.WaitGroup, grace time.Duration, pipes ...*os.File) {
	signalGroup(cmd, false)

	copied := make(chan struct{})
	go func() {
		copying.Wait()
		close(copied)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-copied:
	case <-timer.C:
		logger.LogWarn("Step left processes holding its output open", map[string]interface{}{
			"step": label,
		})
		signalGroup(cmd, true)
		closeAll(pipes...)
		<-copied
	}
	closeAll(pipes...)
}

func copyStream(wg *sync.WaitGroup, dst io.Writer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
