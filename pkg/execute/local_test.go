package execute_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
)

func TestLocalExecutor_RunCapturesOutput(t *testing.T) {
	e := execute.NewLocal(nil)

	res, err := e.Run(context.Background(), execute.Options{
		Command: "sh",
		Args:    []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestLocalExecutor_NonzeroExitIsNotAnError(t *testing.T) {
	e := execute.NewLocal(nil)

	res, err := e.Run(context.Background(), execute.Options{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
}

func TestLocalExecutor_MissingBinaryIsAnError(t *testing.T) {
	e := execute.NewLocal(nil)

	_, err := e.Run(context.Background(), execute.Options{
		Command: "definitely-not-a-real-binary-9c2f",
	})
	assert.Error(t, err)
}

func TestLocalExecutor_StdinPiped(t *testing.T) {
	e := execute.NewLocal(nil)

	res, err := e.Run(context.Background(), execute.Options{
		Command: "cat",
		Stdin:   strings.NewReader("piped payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, "piped payload", res.Stdout)
}

func TestLocalExecutor_CancellationWins(t *testing.T) {
	e := execute.NewLocal(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Run(ctx, execute.Options{
		Command: "sleep",
		Args:    []string{"30"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLocalExecutor_StartWaitTerminate(t *testing.T) {
	e := execute.NewLocal(nil)

	proc, err := e.Start(context.Background(), execute.Options{
		Command: "sh",
		Args:    []string{"-c", "echo streaming; exit 0"},
	})
	require.NoError(t, err)

	out, err := io.ReadAll(proc.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "streaming\n", string(out))

	res, err := proc.Wait()
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Terminate after exit is a no-op.
	assert.NoError(t, proc.Terminate())
}

func TestLocalExecutor_TerminateKillsRunningProc(t *testing.T) {
	e := execute.NewLocal(nil)

	proc, err := e.Start(context.Background(), execute.Options{
		Command: "sleep",
		Args:    []string{"30"},
	})
	require.NoError(t, err)

	require.NoError(t, proc.Terminate())

	res, err := proc.Wait()
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestLocalExecutor_StartHonorsTimeout(t *testing.T) {
	e := execute.NewLocal(nil)

	start := time.Now()
	proc, err := e.Start(context.Background(), execute.Options{
		Command: "sleep",
		Args:    []string{"30"},
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = proc.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLocalExecutor_Hostname(t *testing.T) {
	e := execute.NewLocal(nil)
	assert.NotEmpty(t, e.Hostname())
}
