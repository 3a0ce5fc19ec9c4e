// pkg/pcs_cli/signals.go
//
// Two-stage interrupt handling for the sync command. The first Ctrl-C
// cancels the run context and lets the orchestrator unwind inside its
// grace period. The second skips the grace entirely: registered force
// functions run (closing the SSH connection, killing remote sessions) and
// the process exits 130 on the spot.

package pcs_cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
)

// ForceFunc tears something down immediately on the second signal. Force
// functions run in reverse registration order.
type ForceFunc func()

// SignalHandler owns the cancellable run context for one command.
type SignalHandler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	forced []ForceFunc

	sigChan chan os.Signal
	log     *zap.Logger
}

// NewSignalHandler installs the SIGINT/SIGTERM handler and returns the
// context operations should run under.
func NewSignalHandler(ctx context.Context, log *zap.Logger) *SignalHandler {
	ctx, cancel := context.WithCancel(ctx)
	h := &SignalHandler{
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
		log:     log,
	}
	signal.Notify(h.sigChan, os.Interrupt, syscall.SIGTERM)
	go h.handleSignals()
	return h
}

// Context returns the run context; the first signal cancels it.
func (h *SignalHandler) Context() context.Context {
	return h.ctx
}

// RegisterForce adds a teardown executed only on the second signal.
func (h *SignalHandler) RegisterForce(fn ForceFunc) {
	h.mu.Lock()
	h.forced = append(h.forced, fn)
	h.mu.Unlock()
}

// Stop uninstalls the handler. Call once the run has finished normally.
func (h *SignalHandler) Stop() {
	signal.Stop(h.sigChan)
	h.cancel()
}

func (h *SignalHandler) handleSignals() {
	sig, ok := <-h.sigChan
	if !ok {
		return
	}
	h.log.Warn("Received signal, cancelling run",
		zap.String("signal", sig.String()))
	fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling... (press again to force quit)\n", sig)
	h.cancel()

	sig, ok = <-h.sigChan
	if !ok {
		return
	}
	h.log.Error("Received second signal, forcing exit",
		zap.String("signal", sig.String()))
	fmt.Fprintln(os.Stderr, "\nForcing exit.")

	h.mu.Lock()
	forced := h.forced
	h.mu.Unlock()
	for i := len(forced) - 1; i >= 0; i-- {
		forced[i]()
	}

	logger.Sync()
	os.Exit(130)
}
