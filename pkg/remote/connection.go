// pkg/remote/connection.go
//
// Connection owns the single authenticated channel to the target host and
// multiplexes every command session over it. Liveness is probed with
// keepalive requests; a bounded number of consecutive failures is treated
// as connection loss.

package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/semaphore"
)

// Config holds everything needed to reach the target host.
type Config struct {
	User                 string
	Host                 string
	Port                 int
	KeyPath              string
	MaxSessions          int64
	KeepaliveInterval    time.Duration
	KeepaliveMaxFailures int
}

// Connection is the one SSH channel shared by all concurrent sessions.
type Connection struct {
	client *ssh.Client
	cfg    Config
	bus    *eventbus.Bus
	log    *zap.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions map[*ssh.Session]struct{}
	closed   bool

	lostOnce sync.Once
	lost     chan struct{}
	lostErr  error

	keepaliveStop chan struct{}
}

// Dial opens the channel and starts the keepalive loop.
func Dial(ctx context.Context, cfg Config, bus *eventbus.Bus, log *zap.Logger) (*Connection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 8
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 15 * time.Second
	}
	if cfg.KeepaliveMaxFailures <= 0 {
		cfg.KeepaliveMaxFailures = 3
	}

	auth, err := publicKeyAuth(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback(log),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	log.Info("Connecting to target host",
		zap.String("addr", addr),
		zap.String("user", cfg.User))

	dialer := net.Dialer{Timeout: clientCfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to reach %s", addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	if err != nil {
		netConn.Close()
		return nil, cerr.Wrapf(err, "SSH handshake with %s failed", addr)
	}

	c := &Connection{
		client:        ssh.NewClient(sshConn, chans, reqs),
		cfg:           cfg,
		bus:           bus,
		log:           log,
		sem:           semaphore.NewWeighted(cfg.MaxSessions),
		sessions:      make(map[*ssh.Session]struct{}),
		lost:          make(chan struct{}),
		keepaliveStop: make(chan struct{}),
	}

	c.publishState(eventbus.ConnEstablished, addr)
	go c.keepaliveLoop()
	return c, nil
}

// Lost is closed when keepalive retries are exhausted.
func (c *Connection) Lost() <-chan struct{} { return c.lost }

// LostErr reports why the connection died, nil while it is healthy.
func (c *Connection) LostErr() error {
	select {
	case <-c.lost:
		return c.lostErr
	default:
		return nil
	}
}

func (c *Connection) keepaliveLoop() {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.keepaliveStop:
			return
		case <-ticker.C:
		}

		_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
		if err == nil {
			if failures > 0 {
				c.publishState(eventbus.ConnEstablished, "keepalive recovered")
			}
			failures = 0
			continue
		}

		failures++
		c.log.Warn("Keepalive probe failed",
			zap.Int("consecutive_failures", failures),
			zap.Int("max_failures", c.cfg.KeepaliveMaxFailures),
			zap.Error(err))
		c.publishState(eventbus.ConnDegraded,
			fmt.Sprintf("keepalive failure %d/%d", failures, c.cfg.KeepaliveMaxFailures))

		if failures >= c.cfg.KeepaliveMaxFailures {
			c.markLost(cerr.Wrap(err, "keepalive retries exhausted"))
			return
		}
	}
}

func (c *Connection) markLost(err error) {
	c.lostOnce.Do(func() {
		c.lostErr = err
		c.publishState(eventbus.ConnLost, err.Error())
		close(c.lost)
	})
}

func (c *Connection) publishState(state eventbus.ConnState, detail string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.ConnectionEvent{
		Time:   time.Now(),
		State:  state,
		Detail: detail,
	})
}

// acquireSession blocks on the session semaphore, then opens a session and
// registers it for force-termination.
func (c *Connection) acquireSession(ctx context.Context) (*ssh.Session, func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	sess, err := c.client.NewSession()
	if err != nil {
		c.sem.Release(1)
		if lostErr := c.LostErr(); lostErr != nil {
			return nil, nil, lostErr
		}
		return nil, nil, cerr.Wrap(err, "failed to open SSH session")
	}

	c.mu.Lock()
	c.sessions[sess] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.sessions, sess)
			c.mu.Unlock()
			c.sem.Release(1)
		})
	}
	return sess, release, nil
}

// ForceTerminateAll kills every live remote session. Used when the
// cancellation grace period expires or on a second operator interrupt.
func (c *Connection) ForceTerminateAll() {
	c.mu.Lock()
	sessions := make([]*ssh.Session, 0, len(c.sessions))
	for s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		_ = s.Signal(ssh.SIGKILL)
		_ = s.Close()
	}
	if len(sessions) > 0 {
		c.log.Warn("Force-terminated remote sessions", zap.Int("count", len(sessions)))
	}
}

// Close stops keepalive and tears down the channel.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.keepaliveStop)
	c.publishState(eventbus.ConnClosed, "")
	return c.client.Close()
}

func publicKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, cerr.Wrap(err, "cannot resolve home directory for SSH key")
		}
		keyPath = filepath.Join(home, ".ssh", "id_ed25519")
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to read SSH key %s", keyPath)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to parse SSH key %s", keyPath)
	}
	return ssh.PublicKeys(signer), nil
}

func hostKeyCallback(log *zap.Logger) ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
		if err == nil {
			return cb
		}
		log.Warn("known_hosts unavailable, falling back to accept-any host key", zap.Error(err))
	}
	// LAN-only tool; without known_hosts we log the fingerprint instead of refusing.
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		log.Warn("Host key not verified",
			zap.String("host", hostname),
			zap.String("fingerprint", ssh.FingerprintSHA256(key)))
		return nil
	}
}
