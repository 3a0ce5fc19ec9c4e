// pkg/eventbus/zapbridge.go
//
// A zapcore.Core that publishes LogEvents instead of writing bytes. Lets
// components that take a *zap.Logger (the snapshot manager, the lock
// manager) emit through the bus without knowing it exists.

package eventbus

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type busCore struct {
	bus      *Bus
	job      string
	host     HostRole
	hostname string
	fields   []zapcore.Field
}

// NewJobLogger builds a zap logger whose output is published as LogEvents
// attributed to one (job, host) pair. Severity filtering happens in the
// consumers, so this core accepts everything.
func NewJobLogger(bus *Bus, jobName string, host HostRole, hostname string) *zap.Logger {
	return zap.New(&busCore{bus: bus, job: jobName, host: host, hostname: hostname})
}

func (c *busCore) Enabled(zapcore.Level) bool { return true }

func (c *busCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *busCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(entry, c)
}

func (c *busCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field{}, c.fields...), fields...)
	c.bus.Publish(LogEvent{
		Time:     time.Now(),
		Level:    entry.Level,
		Job:      c.job,
		Host:     c.host,
		Hostname: c.hostname,
		Message:  entry.Message,
		Fields:   all,
	})
	return nil
}

func (c *busCore) Sync() error { return nil }
