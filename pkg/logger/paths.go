/* pkg/logger/paths.go */

package logger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const systemLogDir = "/var/log/pc-switcher"

// LogDir returns the run-log directory, preferring the system path and
// falling back to the user's state directory when it is not writable.
func LogDir() string {
	if dirWritable(systemLogDir) {
		return systemLogDir
	}
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "pc-switcher")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pc-switcher")
	}
	return filepath.Join(home, ".local", "state", "pc-switcher")
}

// RunLogPath returns the log file path for one sync session.
// One file per run, one JSON object per line.
func RunLogPath(sessionID string) string {
	return filepath.Join(LogDir(), "sync-"+sessionID+".jsonl")
}

// LatestRunLog returns the most recently modified run log, or an empty
// string when no runs have been logged yet.
func LatestRunLog() (string, error) {
	entries, err := os.ReadDir(LogDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var logs []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "sync-") && strings.HasSuffix(e.Name(), ".jsonl") {
			logs = append(logs, e)
		}
	}
	if len(logs) == 0 {
		return "", nil
	}

	sort.Slice(logs, func(i, j int) bool {
		fi, erri := logs[i].Info()
		fj, errj := logs[j].Info()
		if erri != nil || errj != nil {
			return logs[i].Name() < logs[j].Name()
		}
		return fi.ModTime().Before(fj.ModTime())
	})
	return filepath.Join(LogDir(), logs[len(logs)-1].Name()), nil
}

// EnsureLogDir creates the parent directory of a log file path.
func EnsureLogDir(logFilePath string) error {
	return os.MkdirAll(filepath.Dir(logFilePath), 0700)
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}
