// pkg/orchestrator/target.go

package orchestrator

import (
	"os/user"
	"strconv"
	"strings"

	cerr "github.com/cockroachdb/errors"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/remote"
)

// resolveTarget turns the configured target (hostname or user@host[:port])
// into a connection config. Inline user/port win over the ssh block.
func resolveTarget(cfg *config.Config) (remote.Config, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return remote.Config{}, cerr.New("target is empty")
	}

	rc := remote.Config{
		User:                 cfg.SSH.User,
		Host:                 target,
		Port:                 cfg.SSH.Port,
		KeyPath:              cfg.SSH.KeyPath,
		MaxSessions:          cfg.SSH.MaxSessions,
		KeepaliveInterval:    cfg.SSH.KeepaliveInterval,
		KeepaliveMaxFailures: cfg.SSH.KeepaliveMaxFailures,
	}

	if at := strings.LastIndex(rc.Host, "@"); at >= 0 {
		rc.User = rc.Host[:at]
		rc.Host = rc.Host[at+1:]
	}
	if colon := strings.LastIndex(rc.Host, ":"); colon >= 0 {
		port, err := strconv.Atoi(rc.Host[colon+1:])
		if err != nil || port < 1 || port > 65535 {
			return remote.Config{}, cerr.Newf("invalid port in target %q", target)
		}
		rc.Port = port
		rc.Host = rc.Host[:colon]
	}
	if rc.Host == "" {
		return remote.Config{}, cerr.Newf("no host in target %q", target)
	}

	if rc.User == "" {
		u, err := user.Current()
		if err != nil {
			return remote.Config{}, cerr.Wrap(err, "cannot resolve local user for ssh")
		}
		rc.User = u.Username
	}
	return rc, nil
}
