// pkg/job/context.go

package job

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context is the immutable per-run bundle handed to every job: both
// executors, the event bus handle, and identifying metadata. Owned by the
// orchestrator, shared read-only.
type Context struct {
	SessionID      string
	Local          execute.Executor
	Remote         execute.Executor
	Bus            *eventbus.Bus
	SourceHostname string
	TargetHostname string
}

// Executor returns the executor for a host role.
func (jc *Context) Executor(host eventbus.HostRole) execute.Executor {
	if host == eventbus.HostTarget {
		return jc.Remote
	}
	return jc.Local
}

// HostnameFor resolves the hostname of a role for log lines.
func (jc *Context) HostnameFor(host eventbus.HostRole) string {
	if host == eventbus.HostTarget {
		return jc.TargetHostname
	}
	return jc.SourceHostname
}

// Logger returns a publisher of LogEvents for one job on one host. Leaf
// jobs log through this; they never touch the bus directly.
func (jc *Context) Logger(jobName string, host eventbus.HostRole) *JobLogger {
	return &JobLogger{jc: jc, job: jobName, host: host}
}

// Progress publishes a ProgressEvent.
func (jc *Context) Progress(jobName string, host eventbus.HostRole, update eventbus.ProgressUpdate) {
	jc.Bus.Publish(eventbus.ProgressEvent{
		Time:   time.Now(),
		Job:    jobName,
		Host:   host,
		Update: update,
	})
}

// Heartbeat publishes a bare heartbeat so watchers know the job is alive.
func (jc *Context) Heartbeat(jobName string, host eventbus.HostRole) {
	jc.Progress(jobName, host, eventbus.ProgressUpdate{})
}

// JobLogger publishes severity-tagged LogEvents for one (job, host) pair.
type JobLogger struct {
	jc   *Context
	job  string
	host eventbus.HostRole
}

func (l *JobLogger) log(level zapcore.Level, msg string, fields ...zap.Field) {
	l.jc.Bus.Publish(eventbus.LogEvent{
		Time:     time.Now(),
		Level:    level,
		Job:      l.job,
		Host:     l.host,
		Hostname: l.jc.HostnameFor(l.host),
		Message:  msg,
		Fields:   fields,
	})
}

func (l *JobLogger) Debug(msg string, fields ...zap.Field) { l.log(zapcore.DebugLevel, msg, fields...) }
func (l *JobLogger) Info(msg string, fields ...zap.Field)  { l.log(zapcore.InfoLevel, msg, fields...) }
func (l *JobLogger) Warn(msg string, fields ...zap.Field)  { l.log(zapcore.WarnLevel, msg, fields...) }
func (l *JobLogger) Error(msg string, fields ...zap.Field) { l.log(zapcore.ErrorLevel, msg, fields...) }
