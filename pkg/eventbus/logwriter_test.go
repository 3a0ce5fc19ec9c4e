/* pkg/eventbus/logwriter_test.go */

package eventbus_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
)

func fileWriter(t *testing.T, level zapcore.Level) (*eventbus.LogWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.jsonl")
	core, closeLog, err := logger.NewFileCore(path, zapcore.DebugLevel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeLog() })
	return eventbus.NewLogWriter(core, level), path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestLogWriter_OneTimestampPerLine(t *testing.T) {
	w, path := fileWriter(t, zapcore.DebugLevel)

	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	w.Handle(eventbus.LogEvent{
		Time:     when,
		Level:    zapcore.InfoLevel,
		Job:      "rsync-home",
		Host:     eventbus.HostTarget,
		Hostname: "officepc",
		Message:  "transfer started",
		Fields:   []zap.Field{zap.String("path", "/home")},
	})

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, strings.Count(lines[0], `"timestamp"`),
		"each line must carry exactly one timestamp key")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "transfer started", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "rsync-home", entry["job"])
	assert.Equal(t, "officepc", entry["hostname"])
	assert.Equal(t, "/home", entry["path"])

	ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", entry["timestamp"].(string))
	require.NoError(t, err)
	assert.True(t, ts.Equal(when), "timestamp must be the event's own time, got %s", entry["timestamp"])
}

func TestLogWriter_FiltersBelowMinimumLevel(t *testing.T) {
	w, path := fileWriter(t, zapcore.InfoLevel)

	w.Handle(logEvent("kept"))
	ev := logEvent("dropped")
	ev.Level = zapcore.DebugLevel
	w.Handle(ev)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestLogWriter_ProgressRecordedAtDebug(t *testing.T) {
	w, path := fileWriter(t, zapcore.DebugLevel)

	pct := 42.5
	w.Handle(eventbus.ProgressEvent{
		Time:   time.Now(),
		Job:    "rsync-home",
		Host:   eventbus.HostSource,
		Update: eventbus.ProgressUpdate{Percent: &pct},
	})

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, strings.Count(lines[0], `"timestamp"`))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "progress", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, 42.5, entry["percent"])
}
