// pkg/execute/local.go
//
// Local command execution with structured logging. Shell execution is not
// offered; callers pass argv so nothing is ever interpolated into a shell
// on this side.

package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// LocalExecutor spawns OS processes on the machine pc-switcher runs on.
type LocalExecutor struct {
	hostname string
	log      *zap.Logger
}

// NewLocal builds the local executor. The logger may be nil.
func NewLocal(log *zap.Logger) *LocalExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return &LocalExecutor{hostname: hostname, log: log}
}

func (e *LocalExecutor) Hostname() string { return e.hostname }

func (e *LocalExecutor) Run(ctx context.Context, opts Options) (*CommandResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debug("Executing local command",
		zap.String("command", buildCommandString(opts.Command, opts.Args...)))

	err := cmd.Run()
	// A context-killed process surfaces as an ExitError (signal: killed);
	// cancellation must win over exit-code interpretation.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, cerr.Wrapf(err, "failed to execute %s", opts.Command)
	}

	return result, nil
}

func (e *LocalExecutor) Start(ctx context.Context, opts Options) (Proc, error) {
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, cerr.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, cerr.Wrap(err, "stderr pipe")
	}

	e.log.Debug("Starting local command",
		zap.String("command", buildCommandString(opts.Command, opts.Args...)))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, cerr.Wrapf(err, "failed to start %s", opts.Command)
	}

	return &localProc{cmd: cmd, ctx: ctx, cancel: cancel, stdout: stdout, stderr: stderr}, nil
}

type localProc struct {
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
	stdout io.Reader
	stderr io.Reader

	once   sync.Once
	result *CommandResult
	err    error
}

func (p *localProc) Stdout() io.Reader { return p.stdout }
func (p *localProc) Stderr() io.Reader { return p.stderr }

func (p *localProc) Wait() (*CommandResult, error) {
	p.once.Do(func() {
		err := p.cmd.Wait()
		// A context-killed process surfaces as an ExitError (signal: killed);
		// cancellation and timeout must win over exit-code interpretation.
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			p.cancel()
			p.err = ctxErr
			return
		}
		p.cancel()
		result := &CommandResult{}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			result.Success = true
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			p.err = err
			return
		}
		p.result = result
	})
	return p.result, p.err
}

func (p *localProc) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
