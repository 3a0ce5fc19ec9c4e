package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
)

// TestRuntimeContext builds a RuntimeContext backed by the test logger.
func TestRuntimeContext(t *testing.T) *pcs_io.RuntimeContext {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &pcs_io.RuntimeContext{
		Ctx:        ctx,
		Log:        zaptest.NewLogger(t),
		Timestamp:  time.Now(),
		Command:    "test",
		SessionID:  pcs_io.NewSessionID(),
		Attributes: make(map[string]string),
	}
}
