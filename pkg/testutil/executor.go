package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
)

// FakeExecutor is a scripted execute.Executor. Stubs are matched by
// substring against the rendered command line, first match wins; anything
// unmatched succeeds with empty output.
type FakeExecutor struct {
	Host string

	mu    sync.Mutex
	stubs []*stub
	calls []Call
}

// Call records one Run invocation, with any piped stdin drained.
type Call struct {
	Options execute.Options
	Stdin   string
}

type stub struct {
	substr string
	result *execute.CommandResult
	err    error
	once   bool
	used   bool
}

func NewFakeExecutor(host string) *FakeExecutor {
	return &FakeExecutor{Host: host}
}

func (f *FakeExecutor) Hostname() string { return f.Host }

// Stub registers a persistent response for command lines containing substr.
func (f *FakeExecutor) Stub(substr string, result *execute.CommandResult, err error) {
	f.addStub(substr, result, err, false)
}

// StubOnce registers a response consumed by its first match.
func (f *FakeExecutor) StubOnce(substr string, result *execute.CommandResult, err error) {
	f.addStub(substr, result, err, true)
}

// StubFail is shorthand for a nonzero exit with the given stderr.
func (f *FakeExecutor) StubFail(substr string, exitCode int, stderr string) {
	f.Stub(substr, &execute.CommandResult{ExitCode: exitCode, Stderr: stderr}, nil)
}

// StubOutput is shorthand for a zero exit with the given stdout.
func (f *FakeExecutor) StubOutput(substr, stdout string) {
	f.Stub(substr, &execute.CommandResult{ExitCode: 0, Success: true, Stdout: stdout}, nil)
}

func (f *FakeExecutor) addStub(substr string, result *execute.CommandResult, err error, once bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, &stub{substr: substr, result: result, err: err, once: once})
}

// Calls returns every Run invocation so far.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsMatching returns the recorded command lines containing substr.
func (f *FakeExecutor) CallsMatching(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lines []string
	for _, c := range f.calls {
		line := CommandLine(c.Options)
		if strings.Contains(line, substr) {
			lines = append(lines, line)
		}
	}
	return lines
}

func (f *FakeExecutor) Run(ctx context.Context, opts execute.Options) (*execute.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := Call{Options: opts}
	if opts.Stdin != nil {
		data, _ := io.ReadAll(opts.Stdin)
		call.Stdin = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	line := CommandLine(opts)
	var matched *stub
	for _, s := range f.stubs {
		if s.used {
			continue
		}
		if strings.Contains(line, s.substr) {
			if s.once {
				s.used = true
			}
			matched = s
			break
		}
	}
	f.mu.Unlock()

	if matched == nil {
		return &execute.CommandResult{ExitCode: 0, Success: true}, nil
	}
	if matched.err != nil {
		return nil, matched.err
	}
	res := *matched.result
	res.Success = res.ExitCode == 0
	return &res, nil
}

func (f *FakeExecutor) Start(ctx context.Context, opts execute.Options) (execute.Proc, error) {
	res, err := f.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &fakeProc{
		stdout: io.NopCloser(strings.NewReader(res.Stdout)),
		stderr: io.NopCloser(strings.NewReader(res.Stderr)),
		result: res,
	}, nil
}

type fakeProc struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
	result *execute.CommandResult
}

func (p *fakeProc) Stdout() io.Reader { return p.stdout }
func (p *fakeProc) Stderr() io.Reader { return p.stderr }

func (p *fakeProc) Wait() (*execute.CommandResult, error) { return p.result, nil }

func (p *fakeProc) Terminate() error { return nil }

// CommandLine renders options the way stubs are matched against them.
func CommandLine(opts execute.Options) string {
	return strings.Join(append([]string{opts.Command}, opts.Args...), " ")
}
