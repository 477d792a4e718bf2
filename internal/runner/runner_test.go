//go:build unix

package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	res, err := Run(context.Background(), Invocation{
		Label:     "build[0]",
		Command:   "sh",
		Arguments: []string{"-c", "echo hello"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "hello\n", string(res.Output))
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	res, err := Run(context.Background(), Invocation{Command: "sh", Arguments: []string{"-c", "echo oops >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitStatus)
	assert.False(t, res.Success())
	assert.Contains(t, string(res.Output), "oops")
}

func TestRunFalse(t *testing.T) {
	res, err := Run(context.Background(), Invocation{Command: "false"})
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitStatus)
}

func TestRunCommandNotFound(t *testing.T) {
	res, err := Run(context.Background(), Invocation{Command: "definitely-not-a-command-xyz"})
	require.NoError(t, err)
	assert.Equal(t, ExitNotFound, res.ExitStatus)
	assert.NotEmpty(t, res.Output)
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Invocation{Command: "sh", Arguments: []string{"-c", "touch marker"}, Dir: dir})
	require.NoError(t, err)
	require.True(t, res.Success())
	assert.FileExists(t, filepath.Join(dir, "marker"))
}

func TestRunLiveOutput(t *testing.T) {
	var live bytes.Buffer
	res, err := Run(context.Background(), Invocation{
		Command:   "sh",
		Arguments: []string{"-c", "echo out; echo err >&2"},
		Output:    &live,
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Contains(t, live.String(), "out")
	assert.Contains(t, live.String(), "err")
}

func TestRunAlreadyCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, Invocation{Command: "touch", Arguments: []string{"marker"}, Dir: dir})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.NoFileExists(t, filepath.Join(dir, "marker"))
}

func TestRunCancelTerminatesProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := Run(ctx, Invocation{
		Command:     "sleep",
		Arguments:   []string{"30"},
		GracePeriod: time.Second,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEqual(t, 0, res.ExitStatus)
}

func TestRunCancelEscalatesToKill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, Invocation{
		Command:     "sh",
		Arguments:   []string{"-c", "trap '' TERM; sleep 30"},
		GracePeriod: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunDoesNotWaitForBackgroundChildren(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), Invocation{
		Command:   "sh",
		Arguments: []string{"-c", "sleep 30 & echo started"},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, res.Success())
	assert.Equal(t, "started\n", string(res.Output))
}

func TestRunClosesPipesHeldOutsideTheGroup(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}

	start := time.Now()
	res, err := Run(context.Background(), Invocation{
		Command:     "sh",
		Arguments:   []string{"-c", "setsid sleep 10 & echo started"},
		GracePeriod: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, res.Success())
	assert.Contains(t, string(res.Output), "started")
}

func TestStepLog(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenStepLog(filepath.Join(dir, "steps"), "abc")
	require.NoError(t, err)

	_, err = Run(context.Background(), Invocation{
		Label:     "build[1]",
		Command:   "sh",
		Arguments: []string{"-c", "echo compiled"},
		Log:       log,
	})
	require.NoError(t, err)
	require.NoError(t, log.Close())
	assert.Equal(t, LogFilePath(filepath.Join(dir, "steps"), "abc"), log.Path)

	f, err := os.Open(log.Path)
	require.NoError(t, err)
	defer f.Close()

	var lines []LogLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line LogLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, LogLine{Step: "build[1]", Stream: "stdout", Data: "compiled"}, lines[0])
}

func TestNilStepLogDiscards(t *testing.T) {
	var log *StepLog
	n, err := log.Writer("x", "stdout").Write([]byte("data"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, log.Close())
}
