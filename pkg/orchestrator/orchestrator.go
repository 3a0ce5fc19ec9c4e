// pkg/orchestrator/orchestrator.go
//
// The sync state machine. Phases run strictly forward: validate config,
// connect, lock, reconcile versions, validate live state, preflight,
// pre-snapshot, execute, post-snapshot, teardown. A fault before the first
// pre-snapshot aborts with zero recoverable state change; a fault after it
// fails the run and the summary names the pre-snapshot session to roll
// back to.

package orchestrator

import (
	"context"
	"errors"
	"os"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/btrfs"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/diskwatch"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/hostlock"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/remote"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/safety"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/version"
)

// teardownTimeout bounds lock release and connection shutdown after the run
// context is already dead.
const teardownTimeout = 15 * time.Second

// targetLink is the slice of the SSH connection the phase machine drives:
// loss notification and forced shutdown. Everything else goes through the
// remote executor.
type targetLink interface {
	Lost() <-chan struct{}
	LostErr() error
	ForceTerminateAll()
	Close() error
}

// dialFunc establishes the transport to the target and returns its
// executor. Swappable so the phase sequencing is testable without a live
// SSH endpoint.
type dialFunc func(ctx context.Context, cfg remote.Config, bus *eventbus.Bus, log *zap.Logger) (targetLink, version.TargetHost, error)

func sshDial(ctx context.Context, cfg remote.Config, bus *eventbus.Bus, log *zap.Logger) (targetLink, version.TargetHost, error) {
	conn, err := remote.Dial(ctx, cfg, bus, log)
	if err != nil {
		return nil, nil, err
	}
	remoteExec, err := remote.NewExecutor(ctx, conn, log)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, remoteExec, nil
}

// Orchestrator drives one sync session end to end.
type Orchestrator struct {
	cfg *config.Config
	rc  *pcs_io.RuntimeContext

	bus        *eventbus.Bus
	dial       dialFunc
	conn       targetLink
	local      execute.Executor
	remoteExec version.TargetHost
	jc         *job.Context

	Session *SyncSession

	preSnap   *safety.SnapshotJob
	postSnap  *safety.SnapshotJob
	watchdogs []*safety.DiskWatchdogJob
	userJobs  []job.Job

	sourceLock *hostlock.Lock
	targetLock *hostlock.Lock
	closeLog   func() error
}

func New(cfg *config.Config, rc *pcs_io.RuntimeContext) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		rc:       rc,
		dial:     sshDial,
		preSnap:  safety.NewSnapshotJob(cfg, btrfs.PhasePre),
		postSnap: safety.NewSnapshotJob(cfg, btrfs.PhasePost),
		watchdogs: []*safety.DiskWatchdogJob{
			safety.NewDiskWatchdogJob(cfg, eventbus.HostSource),
			safety.NewDiskWatchdogJob(cfg, eventbus.HostTarget),
		},
	}
}

// Run executes the whole session. The returned error is classified; the
// CLI maps it to the exit code.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	o.Session = NewSyncSession(o.rc.SessionID)

	if err = o.validateConfigs(); err != nil {
		o.finish(&err)
		return err
	}
	if err = o.startBus(); err != nil {
		o.finish(&err)
		return err
	}
	// finish runs before teardown so the terminal summary flows through the
	// bus and into the run log before the bus drains.
	defer o.teardown()
	defer o.finish(&err)

	if err = o.connect(ctx); err != nil {
		return err
	}
	if err = o.acquireLocks(ctx); err != nil {
		return err
	}
	if err = version.Reconcile(ctx, o.remoteExec, o.rc.Log); err != nil {
		return err
	}
	if err = o.validateLive(ctx); err != nil {
		return err
	}
	if err = o.preflight(ctx); err != nil {
		return err
	}

	// First mutation of synced state. Everything before this line must
	// leave both machines exactly as they were.
	if err = o.runTracked(ctx, o.preSnap); err != nil {
		return err
	}

	if err = o.executeWindow(ctx); err != nil {
		return err
	}

	if err = o.runTracked(ctx, o.postSnap); err != nil {
		return err
	}
	return nil
}

// validateConfigs runs every job's pure config check before anything
// connects. All defects are reported at once, not first-wins.
func (o *Orchestrator) validateConfigs() error {
	jobs, err := job.Build(o.cfg)
	if err != nil {
		return pcs_err.NewConfigError(err.Error(),
			"check jobs.enabled against 'pc-switcher sync --list-jobs'")
	}
	o.userJobs = jobs

	var merr *multierror.Error
	for _, j := range o.allJobs() {
		for _, verr := range j.ValidateConfig(o.cfg) {
			merr = multierror.Append(merr, cerr.Wrapf(verr, "job %s", j.Name()))
		}
	}
	if merr.ErrorOrNil() != nil {
		return pcs_err.NewConfigError("configuration rejected: " + merr.Error())
	}
	return nil
}

// startBus wires the per-run log file and the terminal renderer as bus
// consumers. Each sink filters at its own level.
func (o *Orchestrator) startBus() error {
	o.bus = eventbus.New()

	fileCore, closeLog, err := logger.NewFileCore(
		logger.RunLogPath(o.rc.SessionID),
		logger.ParseLogLevel(o.cfg.LogLevelFile))
	if err != nil {
		return cerr.Wrap(err, "cannot open run log")
	}
	o.closeLog = closeLog

	writer := eventbus.NewLogWriter(fileCore, logger.ParseLogLevel(o.cfg.LogLevelFile))
	o.bus.StartConsumer("logfile", writer.Handle)

	renderer := eventbus.NewRenderer(
		logger.NewConsoleCore(logger.ParseLogLevel(o.cfg.LogLevelTerminal)),
		logger.ParseLogLevel(o.cfg.LogLevelTerminal))
	o.bus.StartConsumer("terminal", renderer.Handle)
	return nil
}

func (o *Orchestrator) connect(ctx context.Context) error {
	sshCfg, err := resolveTarget(o.cfg)
	if err != nil {
		return pcs_err.NewConfigError(err.Error())
	}

	if o.local == nil {
		o.local = execute.NewLocal(o.rc.Log)
	}

	conn, remoteExec, err := o.dial(ctx, sshCfg, o.bus, o.rc.Log)
	if err != nil {
		return pcs_err.NewValidationError(
			"cannot connect to "+sshCfg.Host+": "+err.Error(),
			"check that the target is up and reachable over ssh",
			"check ssh.user and ssh.key_path in the config")
	}
	o.conn = conn
	o.remoteExec = remoteExec

	o.jc = &job.Context{
		SessionID:      o.rc.SessionID,
		Local:          o.local,
		Remote:         remoteExec,
		Bus:            o.bus,
		SourceHostname: o.local.Hostname(),
		TargetHostname: remoteExec.Hostname(),
	}
	o.Session.SourceHostname = o.jc.SourceHostname
	o.Session.TargetHostname = o.jc.TargetHostname
	o.Session.State = StateRunning

	o.rc.Log.Info("Connected to target",
		zap.String("source", o.jc.SourceHostname),
		zap.String("target", o.jc.TargetHostname))
	return nil
}

// acquireLocks takes the lock on both hosts, source first. Failing the
// target lock releases the source lock before returning.
func (o *Orchestrator) acquireLocks(ctx context.Context) error {
	info := hostlock.Info{
		PID:       os.Getpid(),
		SessionID: o.rc.SessionID,
		Hostname:  o.jc.SourceHostname,
		CreatedAt: time.Now(),
	}
	isStale := hostlock.ProcessGone(o.local, o.remoteExec)

	o.sourceLock = hostlock.New(o.local, hostlock.DefaultPath, o.rc.Log)
	if err := o.sourceLock.Acquire(ctx, info, isStale); err != nil {
		o.sourceLock = nil
		return err
	}

	o.targetLock = hostlock.New(o.remoteExec, hostlock.DefaultPath, o.rc.Log)
	if err := o.targetLock.Acquire(ctx, info, isStale); err != nil {
		o.targetLock = nil
		return err
	}
	return nil
}

// validateLive runs every job's live-state check after both hosts are
// reachable and locked, before anything mutates.
func (o *Orchestrator) validateLive(ctx context.Context) error {
	var merr *multierror.Error
	for _, j := range o.allJobs() {
		for _, verr := range j.Validate(ctx, o.jc) {
			merr = multierror.Append(merr, cerr.Wrapf(verr, "job %s", j.Name()))
		}
	}
	if merr.ErrorOrNil() != nil {
		if interrupted(ctx, merr) {
			return pcs_err.NewInterruptedError(merr)
		}
		return pcs_err.NewValidationError("validation failed: " + merr.Error())
	}
	return nil
}

func (o *Orchestrator) preflight(ctx context.Context) error {
	log := o.jc.Logger("disk-preflight", eventbus.HostSource)
	return diskwatch.Preflight(ctx, safety.PreflightChecks(o.cfg, o.jc), o.cfg.Disk.PreflightMin, log)
}

// executeWindow runs the enabled jobs sequentially while one watchdog per
// host polls disk space. The first error cancels everything else in the
// group, including the job mid-flight.
func (o *Orchestrator) executeWindow(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Watchdogs stop cleanly once the runner is done; only a breach or a
	// sample failure should propagate out of them.
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	for _, wd := range o.watchdogs {
		wd := wd
		rec := o.Session.Track(wd)
		g.Go(func() error {
			rec.start()
			err := wd.Execute(watchCtx, o.jc)
			switch {
			case err == nil:
				rec.finish(job.OutcomeSuccess, nil)
				return nil
			case errors.Is(err, context.Canceled) && gctx.Err() == nil:
				// Runner finished; the watchdog was told to stand down.
				rec.finish(job.OutcomeSuccess, nil)
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// Cancelled from outside (operator or a failing sibling),
				// not a fault of this watchdog.
				rec.finish(job.OutcomeCancelled, err)
				return err
			default:
				rec.finish(job.OutcomeFailed, err)
				return err
			}
		})
	}

	// A lost SSH channel fails the run as soon as the keepalive gives up,
	// not when the next remote command happens to run.
	g.Go(func() error {
		select {
		case <-watchCtx.Done():
			return nil
		case <-o.conn.Lost():
			return pcs_err.NewRuntimeError("connection to target lost", o.conn.LostErr(),
				"check the network link and sshd on the target, then re-run sync")
		}
	})

	g.Go(func() error {
		defer stopWatch()
		return o.runJobs(gctx)
	})

	if err := o.waitWithGrace(ctx, g); err != nil {
		if interrupted(ctx, err) {
			return pcs_err.NewInterruptedError(err)
		}
		var breach *diskwatch.BreachError
		if errors.As(err, &breach) {
			return pcs_err.NewRuntimeError(breach.Error(), err,
				"free up disk space on "+breach.Hostname,
				"run 'pc-switcher cleanup-snapshots' to remove old snapshot sessions")
		}
		return err
	}
	return nil
}

// runJobs executes the configurable jobs in config order. A skip is a
// clean outcome; any other error stops the sequence.
func (o *Orchestrator) runJobs(ctx context.Context) error {
	for _, j := range o.userJobs {
		rec := o.Session.Track(j)
		rec.start()
		o.rc.Log.Info("Starting job", zap.String("job", j.Name()))

		err := j.Execute(ctx, o.jc)
		switch {
		case err == nil:
			rec.finish(job.OutcomeSuccess, nil)
		case isSkip(err):
			rec.finish(job.OutcomeSkipped, err)
			o.rc.Log.Info("Job skipped",
				zap.String("job", j.Name()),
				zap.String("reason", err.Error()))
		case ctx.Err() != nil:
			rec.finish(job.OutcomeCancelled, err)
			return ctx.Err()
		default:
			rec.finish(job.OutcomeFailed, err)
			return pcs_err.NewRuntimeError("job "+j.Name()+" failed", err)
		}
	}
	return nil
}

// waitWithGrace waits for the group. Once the run context is cancelled the
// executing job gets grace_period to unwind; past that, every open remote
// session is force-terminated so the wait can finish.
func (o *Orchestrator) waitWithGrace(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	o.rc.Log.Warn("Run cancelled, waiting for jobs to unwind",
		zap.Duration("grace_period", o.cfg.GracePeriod))

	select {
	case err := <-done:
		return err
	case <-time.After(o.cfg.GracePeriod):
		o.rc.Log.Warn("Grace period expired, force-terminating remote sessions")
		o.conn.ForceTerminateAll()
		return <-done
	}
}

// runTracked executes a system job with session bookkeeping. Used for the
// snapshot brackets, which run outside the concurrency group.
func (o *Orchestrator) runTracked(ctx context.Context, j job.Job) error {
	rec := o.Session.Track(j)
	rec.start()
	err := j.Execute(ctx, o.jc)
	if err != nil {
		if interrupted(ctx, err) {
			rec.finish(job.OutcomeCancelled, err)
			return pcs_err.NewInterruptedError(err)
		}
		rec.finish(job.OutcomeFailed, err)
		return pcs_err.NewRuntimeError("job "+j.Name()+" failed", err)
	}
	rec.finish(job.OutcomeSuccess, nil)
	return nil
}

// finish stamps the terminal state and logs the summary. Pre-mutation
// failures and operator cancels are ABORTED; post-mutation faults are
// FAILED and the summary names the session to roll back to.
func (o *Orchestrator) finish(errPtr *error) {
	err := *errPtr
	switch {
	case err == nil:
		o.Session.Finish(StateCompleted)
	case pcs_err.IsInterrupted(err) || !o.mutated():
		o.Session.Finish(StateAborted)
	default:
		o.Session.Finish(StateFailed)
	}

	succeeded, skipped, failed, cancelled := o.Session.Counts()
	fields := []zap.Field{
		zap.String("state", string(o.Session.State)),
		zap.String("session_id", o.Session.ID),
		zap.Duration("duration", o.Session.Ended.Sub(o.Session.Started)),
		zap.Int("succeeded", succeeded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("cancelled", cancelled),
	}

	var level zapcore.Level
	var msg string
	switch o.Session.State {
	case StateCompleted:
		level, msg = zapcore.InfoLevel, "Sync completed"
	case StateAborted:
		level, msg = zapcore.WarnLevel, "Sync aborted, no recoverable state was changed"
	default:
		level, msg = zapcore.ErrorLevel, "Sync failed"
	}

	// The summary goes through the bus so it lands in the run log before
	// teardown drains it. Before the bus exists (config failures) the
	// console logger is all there is.
	o.summarize(level, msg, fields)
	if o.Session.State == StateFailed && o.mutated() {
		o.summarize(zapcore.ErrorLevel, "Pre-sync snapshots exist for recovery",
			[]zap.Field{zap.String("hint", "pc-switcher rollback --session "+o.Session.ID)})
	}
}

func (o *Orchestrator) summarize(level zapcore.Level, msg string, fields []zap.Field) {
	if o.bus == nil {
		o.rc.Log.Log(level, msg, fields...)
		return
	}
	o.bus.Publish(eventbus.LogEvent{
		Time:     time.Now(),
		Level:    level,
		Job:      "orchestrator",
		Host:     eventbus.HostSource,
		Hostname: o.Session.SourceHostname,
		Message:  msg,
		Fields:   fields,
	})
}

// teardown releases locks and drains the bus before the connection closes,
// so no event and no lock outlives the run. Uses a fresh context; the run
// context is usually already cancelled here.
func (o *Orchestrator) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var merr *multierror.Error
	if o.targetLock != nil {
		merr = multierror.Append(merr, o.targetLock.Release(ctx, o.rc.SessionID))
	}
	if o.sourceLock != nil {
		merr = multierror.Append(merr, o.sourceLock.Release(ctx, o.rc.SessionID))
	}

	o.bus.Shutdown()
	if o.closeLog != nil {
		merr = multierror.Append(merr, o.closeLog())
	}
	if o.conn != nil {
		merr = multierror.Append(merr, o.conn.Close())
	}
	if err := merr.ErrorOrNil(); err != nil {
		o.rc.Log.Warn("Teardown finished with errors", zap.Error(err))
	}
}

// ForceDisconnect kills every open remote session and drops the
// connection. Wired to the second-interrupt path; safe before connect and
// safe to call twice.
func (o *Orchestrator) ForceDisconnect() {
	if o.conn == nil {
		return
	}
	o.conn.ForceTerminateAll()
	_ = o.conn.Close()
}

// mutated reports whether any pre-snapshot was created, the line between
// ABORTED and FAILED for non-interrupt errors.
func (o *Orchestrator) mutated() bool {
	return len(o.preSnap.Created) > 0
}

func (o *Orchestrator) allJobs() []job.Job {
	all := []job.Job{o.preSnap, o.postSnap}
	for _, wd := range o.watchdogs {
		all = append(all, wd)
	}
	return append(all, o.userJobs...)
}

func isSkip(err error) bool {
	var skip *job.Skip
	return errors.As(err, &skip)
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
