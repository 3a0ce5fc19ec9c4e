// pkg/remote/executor.go

package remote

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Executor runs commands on the target over multiplexed SSH sessions.
// It satisfies the same interface as the local executor, so jobs are
// indifferent to which host a command lands on.
type Executor struct {
	conn     *Connection
	hostname string
	log      *zap.Logger
}

// NewExecutor resolves the remote hostname once and returns the executor.
func NewExecutor(ctx context.Context, conn *Connection, log *zap.Logger) (*Executor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{conn: conn, hostname: conn.cfg.Host, log: log}

	res, err := e.Run(ctx, execute.Options{Command: "hostname"})
	if err != nil {
		return nil, cerr.Wrap(err, "failed to resolve remote hostname")
	}
	if res.Success {
		if h := firstLine(res.Stdout); h != "" {
			e.hostname = h
		}
	}
	return e, nil
}

func (e *Executor) Hostname() string { return e.hostname }

func (e *Executor) Run(ctx context.Context, opts Options) (*execute.CommandResult, error) {
	return e.run(ctx, opts)
}

// Options is re-exported so call sites read uniformly.
type Options = execute.Options

func (e *Executor) run(ctx context.Context, opts execute.Options) (*execute.CommandResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sess, release, err := e.conn.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	sess.Stdin = opts.Stdin

	cmdline := execute.ShellQuote(opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmdline = "cd " + execute.ShellQuote(opts.Dir) + " && " + cmdline
	}

	e.log.Debug("Executing remote command",
		zap.String("host", e.hostname),
		zap.String("command", cmdline))

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmdline) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &execute.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		result.Success = true
	case cerr.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		if lostErr := e.conn.LostErr(); lostErr != nil {
			return nil, lostErr
		}
		return nil, cerr.Wrapf(err, "remote command failed to execute on %s", e.hostname)
	}
	return result, nil
}

func (e *Executor) Start(ctx context.Context, opts execute.Options) (execute.Proc, error) {
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	sess, release, err := e.conn.acquireSession(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		release()
		cancel()
		return nil, cerr.Wrap(err, "stdout pipe")
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		release()
		cancel()
		return nil, cerr.Wrap(err, "stderr pipe")
	}
	sess.Stdin = opts.Stdin

	cmdline := execute.ShellQuote(opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmdline = "cd " + execute.ShellQuote(opts.Dir) + " && " + cmdline
	}

	e.log.Debug("Starting remote command",
		zap.String("host", e.hostname),
		zap.String("command", cmdline))

	if err := sess.Start(cmdline); err != nil {
		sess.Close()
		release()
		cancel()
		return nil, cerr.Wrapf(err, "failed to start remote command on %s", e.hostname)
	}

	p := &remoteProc{
		sess:    sess,
		release: release,
		ctx:     ctx,
		cancel:  cancel,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	// SSH gives us no server-side process group to kill, so a watcher kills
	// the session when the deadline or the caller's context expires.
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
		case <-p.done:
		}
	}()
	return p, nil
}

type remoteProc struct {
	sess    *ssh.Session
	release func()
	ctx     context.Context
	cancel  context.CancelFunc
	stdout  io.Reader
	stderr  io.Reader
	done    chan struct{}

	once   sync.Once
	result *execute.CommandResult
	err    error
}

func (p *remoteProc) Stdout() io.Reader { return p.stdout }
func (p *remoteProc) Stderr() io.Reader { return p.stderr }

func (p *remoteProc) Wait() (*execute.CommandResult, error) {
	p.once.Do(func() {
		defer p.release()
		defer p.sess.Close()
		defer p.cancel()

		err := p.sess.Wait()
		close(p.done)
		// A killed session surfaces as a wait error; deadline and
		// cancellation must win over exit-code interpretation.
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			p.err = ctxErr
			return
		}
		result := &execute.CommandResult{}
		var exitErr *ssh.ExitError
		switch {
		case err == nil:
			result.Success = true
		case cerr.As(err, &exitErr):
			result.ExitCode = exitErr.ExitStatus()
		default:
			p.err = err
			return
		}
		p.result = result
	})
	return p.result, p.err
}

func (p *remoteProc) Terminate() error {
	_ = p.sess.Signal(ssh.SIGKILL)
	return p.sess.Close()
}

// Upload streams a local file to the target, preserving the given mode.
func (e *Executor) Upload(ctx context.Context, localPath, remotePath string, mode string) error {
	f, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := e.run(ctx, execute.Options{
		Command: "sh",
		Args: []string{"-c",
			"cat > " + shellQuotePath(remotePath) + " && chmod " + mode + " " + shellQuotePath(remotePath)},
		Stdin:   f,
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return cerr.Newf("upload to %s:%s failed: %s", e.hostname, remotePath, firstLine(res.Stderr))
	}
	return nil
}

// Download streams a remote file into localPath.
func (e *Executor) Download(ctx context.Context, remotePath, localPath string) error {
	sess, release, err := e.conn.acquireSession(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer sess.Close()

	out, err := createLocal(localPath)
	if err != nil {
		return err
	}
	defer out.Close()

	sess.Stdout = out
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run("cat " + shellQuotePath(remotePath)) }()

	select {
	case <-ctx.Done():
		_ = sess.Close()
		<-done
		return ctx.Err()
	case err = <-done:
	}
	if err != nil {
		return cerr.Wrapf(err, "download of %s:%s failed: %s", e.hostname, remotePath, firstLine(stderr.String()))
	}
	return nil
}
