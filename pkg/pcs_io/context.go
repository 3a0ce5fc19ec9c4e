// pkg/pcs_io/context.go

package pcs_io

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RuntimeContext bundles everything a command invocation needs: the
// cancellable context, the logger, the root span, and the session identity.
type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Span       trace.Span
	Timestamp  time.Time
	Command    string
	SessionID  string
	Attributes map[string]string
}

// NewContext sets up tracing, logging and the session id for one command.
func NewContext(ctx context.Context, cmdName string) *RuntimeContext {
	ctx, span := telemetry.Start(ctx, cmdName)
	traceID := span.SpanContext().TraceID().String()

	sessionID := NewSessionID()
	log := logger.L().With(
		zap.String("command", cmdName),
		zap.String("session_id", sessionID),
		zap.String("trace_id", traceID),
	).Named(cmdName)

	return &RuntimeContext{
		Ctx:        ctx,
		Span:       span,
		Log:        log,
		Timestamp:  time.Now(),
		Command:    cmdName,
		SessionID:  sessionID,
		Attributes: make(map[string]string),
	}
}

// NewSessionID returns a short, filesystem- and snapshot-name-safe id.
func NewSessionID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}

// HandlePanic recovers panics, logs them, and converts to an error.
func (rc *RuntimeContext) HandlePanic(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = cerr.AssertionFailedf("panic: %v", r)
		rc.Log.Error("panic recovered", zap.Any("panic", r))
	}
}

// End logs the outcome, records the final span, and flushes.
func (rc *RuntimeContext) End(errPtr *error) {
	defer rc.Span.End()

	duration := time.Since(rc.Timestamp)
	success := (*errPtr == nil)

	if success {
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	} else if pcs_err.IsInterrupted(*errPtr) {
		rc.Log.Warn("Command interrupted", zap.Duration("duration", duration))
	} else {
		rc.Log.Error("Command failed", zap.Duration("duration", duration), zap.Error(*errPtr))
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("session_id", rc.SessionID),
		attribute.String("args", strings.Join(os.Args[1:], " ")),
		attribute.Int("exit_code", pcs_err.GetExitCode(*errPtr)),
	}
	_, span := telemetry.Start(rc.Ctx, rc.Command, attrs...)
	span.End()

	logger.Sync()
}
