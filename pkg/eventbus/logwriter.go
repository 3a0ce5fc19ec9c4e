// pkg/eventbus/logwriter.go

package eventbus

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogWriter is the persistent-sink consumer: every LogEvent at or above its
// own minimum severity becomes one JSON line in the per-run log file.
// Progress events are recorded at debug so the file stays useful for
// post-mortem without drowning in heartbeats.
type LogWriter struct {
	core  zapcore.Core
	level zapcore.Level
}

// NewLogWriter wraps a file core (see logger.NewFileCore) as a bus consumer.
func NewLogWriter(core zapcore.Core, level zapcore.Level) *LogWriter {
	return &LogWriter{
		core:  core,
		level: level,
	}
}

// Handle consumes one event. Safe to call from the consumer goroutine only.
func (w *LogWriter) Handle(ev Event) {
	switch e := ev.(type) {
	case LogEvent:
		if e.Level < w.level {
			return
		}
		fields := append([]zap.Field{
			zap.String("job", e.Job),
			zap.String("host", string(e.Host)),
			zap.String("hostname", e.Hostname),
		}, e.Fields...)
		w.write(e.Time, e.Level, e.Message, fields...)

	case ProgressEvent:
		if zapcore.DebugLevel < w.level {
			return
		}
		fields := []zap.Field{
			zap.String("job", e.Job),
			zap.String("host", string(e.Host)),
		}
		if e.Update.Percent != nil {
			fields = append(fields, zap.Float64("percent", *e.Update.Percent))
		}
		if e.Update.Done != nil && e.Update.Total != nil {
			fields = append(fields, zap.Int64("done", *e.Update.Done), zap.Int64("total", *e.Update.Total))
		}
		if e.Update.Item != "" {
			fields = append(fields, zap.String("item", e.Update.Item))
		}
		w.write(e.Time, zapcore.DebugLevel, "progress", fields...)

	case ConnectionEvent:
		w.write(e.Time, connLevel(e.State), "connection state changed",
			zap.String("state", string(e.State)),
			zap.String("detail", e.Detail),
		)
	}
}

// write emits one entry stamped with the event's own time, so each line
// carries exactly one timestamp: when the event happened, not when the
// consumer got around to persisting it.
func (w *LogWriter) write(t time.Time, level zapcore.Level, msg string, fields ...zap.Field) {
	entry := zapcore.Entry{Time: t, Level: level, Message: msg}
	if ce := w.core.Check(entry, nil); ce != nil {
		ce.Write(fields...)
	}
}

func connLevel(state ConnState) zapcore.Level {
	switch state {
	case ConnLost:
		return zapcore.ErrorLevel
	case ConnDegraded:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
