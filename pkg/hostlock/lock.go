// pkg/hostlock/lock.go
//
// Advisory per-host mutual exclusion for sync runs. The lock is a JSON file
// created with noclobber semantics through the host's executor, so the same
// code locks the local and the remote machine. The file records the holder,
// which makes a stale lock (holder process gone) self-diagnosing.

package hostlock

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultPath is the fixed per-host lock location.
const DefaultPath = "/run/pc-switcher.lock"

// Info is the lock file's content.
type Info struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	Hostname  string    `json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}

// StaleFunc decides whether a holder is gone. Separate from Lock so the
// caller controls which host the liveness probe runs on.
type StaleFunc func(ctx context.Context, holder *Info) (bool, error)

// Lock manages the lock file on one host.
type Lock struct {
	exec execute.Executor
	path string
	log  *zap.Logger
}

func New(exec execute.Executor, path string, log *zap.Logger) *Lock {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lock{exec: exec, path: path, log: log}
}

// Acquire creates the lock file, recovering from at most one stale holder.
// A live holder yields a user error naming the holder so the operator sees
// a clear "in progress" diagnostic.
func (l *Lock) Acquire(ctx context.Context, info Info, isStale StaleFunc) error {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.tryCreate(ctx, info)
		if err != nil {
			return err
		}
		if ok {
			l.log.Info("Acquired host lock",
				zap.String("host", l.exec.Hostname()),
				zap.String("path", l.path))
			return nil
		}

		holder, err := l.Read(ctx)
		if err != nil {
			return err
		}
		if holder == nil {
			// Lock vanished between the create attempt and the read.
			continue
		}

		stale, err := isStale(ctx, holder)
		if err != nil {
			return err
		}
		if !stale {
			return pcs_err.NewUserError(
				"a sync is already in progress on %s (pid %d, session %s, started %s)",
				l.exec.Hostname(), holder.PID, holder.SessionID,
				holder.CreatedAt.Format(time.RFC3339))
		}

		l.log.Warn("Removing stale host lock",
			zap.String("host", l.exec.Hostname()),
			zap.Int("holder_pid", holder.PID),
			zap.String("holder_session", holder.SessionID))
		if err := l.remove(ctx); err != nil {
			return err
		}
	}
	return cerr.Newf("could not acquire lock on %s after stale-lock recovery", l.exec.Hostname())
}

// Release removes the lock only when this session still holds it.
func (l *Lock) Release(ctx context.Context, sessionID string) error {
	holder, err := l.Read(ctx)
	if err != nil {
		return err
	}
	if holder == nil {
		return nil
	}
	if holder.SessionID != sessionID {
		return cerr.Newf("lock on %s is held by session %s, not %s; refusing to release",
			l.exec.Hostname(), holder.SessionID, sessionID)
	}
	return l.remove(ctx)
}

// Read returns the current holder, or nil when no lock exists.
func (l *Lock) Read(ctx context.Context) (*Info, error) {
	res, err := l.exec.Run(ctx, execute.Options{
		Command: "cat",
		Args:    []string{l.path},
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, nil
	}

	var info Info
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		// A garbled lock file is treated as held by an unknown process;
		// operators remove it by hand rather than pc-switcher guessing.
		return nil, pcs_err.NewUserError(
			"lock file %s on %s is unreadable; remove it manually if no sync is running",
			l.path, l.exec.Hostname())
	}
	return &info, nil
}

func (l *Lock) tryCreate(ctx context.Context, info Info) (bool, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return false, cerr.Wrap(err, "failed to encode lock info")
	}

	// set -C is POSIX noclobber: the redirect fails if the file exists,
	// which is the whole point.
	res, err := l.exec.Run(ctx, execute.Options{
		Command: "sh",
		Args:    []string{"-c", "set -C; cat > " + execute.ShellQuote(l.path)},
		Stdin:   strings.NewReader(string(payload)),
	})
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

func (l *Lock) remove(ctx context.Context) error {
	res, err := l.exec.Run(ctx, execute.Options{
		Command: "rm",
		Args:    []string{"-f", l.path},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return cerr.Newf("failed to remove lock %s on %s: %s",
			l.path, l.exec.Hostname(), pcs_err.ExtractSummary(res.Stderr, 2))
	}
	return nil
}

// ProcessGone builds a StaleFunc that probes holder liveness with kill -0
// on whichever of the given executors matches the hostname recorded in the
// lock. A holder on a host we cannot reach is conservatively alive.
func ProcessGone(execs ...execute.Executor) StaleFunc {
	return func(ctx context.Context, holder *Info) (bool, error) {
		for _, exec := range execs {
			if exec.Hostname() != holder.Hostname {
				continue
			}
			res, err := exec.Run(ctx, execute.Options{
				Command: "kill",
				Args:    []string{"-0", strconv.Itoa(holder.PID)},
			})
			if err != nil {
				return false, err
			}
			return !res.Success, nil
		}
		return false, nil
	}
}
