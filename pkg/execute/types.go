// pkg/execute/types.go

package execute

import (
	"context"
	"io"
	"time"
)

// CommandResult is the raw outcome of a run-to-completion command. A nonzero
// exit code is not an error: interpretation belongs to the calling job.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Success  bool
}

// Options describes one command invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Stdin   io.Reader
	Timeout time.Duration
}

// Proc is a started, still-running command.
type Proc interface {
	// Stdout and Stderr stream live output. Read them before Wait.
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until exit and returns the result with captured output.
	Wait() (*CommandResult, error)
	// Terminate kills the process. Idempotent.
	Terminate() error
}

// Executor runs commands on one host. There are two implementations: local
// process spawning and multiplexed sessions over the SSH channel.
type Executor interface {
	// Hostname is the resolved name of the host this executor targets.
	Hostname() string
	// Run executes to completion and captures both streams. The returned
	// error is reserved for failure to execute (spawn, connection,
	// cancellation), never for a nonzero exit.
	Run(ctx context.Context, opts Options) (*CommandResult, error)
	// Start launches the command and returns a live handle.
	Start(ctx context.Context, opts Options) (Proc, error)
}
