package pcs_err_test

import (
	"context"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil is success", err: nil, want: 0},
		{name: "plain error", err: cerr.New("boom"), want: 1},
		{name: "config error", err: pcs_err.NewConfigError("bad yaml"), want: 1},
		{name: "validation error", err: pcs_err.NewValidationError("not a subvolume"), want: 1},
		{name: "runtime error", err: pcs_err.NewRuntimeError("job failed", cerr.New("cause")), want: 1},
		{name: "interrupted", err: pcs_err.NewInterruptedError(context.Canceled), want: 130},
		{
			name: "interrupted survives wrapping",
			err:  cerr.Wrap(pcs_err.NewInterruptedError(context.Canceled), "while syncing"),
			want: 130,
		},
		{name: "user error", err: pcs_err.NewUserError("already running"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pcs_err.GetExitCode(tt.err))
		})
	}
}

func TestIsInterrupted(t *testing.T) {
	assert.True(t, pcs_err.IsInterrupted(pcs_err.NewInterruptedError(context.Canceled)))
	assert.False(t, pcs_err.IsInterrupted(pcs_err.NewRuntimeError("x", nil)))
	assert.False(t, pcs_err.IsInterrupted(nil))
	assert.False(t, pcs_err.IsInterrupted(context.Canceled))
}

func TestClassifiedError_MessageIncludesRemediation(t *testing.T) {
	err := pcs_err.NewValidationError("not enough disk space",
		"free up disk space",
		"run 'pc-switcher cleanup-snapshots'")

	msg := err.Error()
	assert.Contains(t, msg, "not enough disk space")
	assert.Contains(t, msg, "How to fix:")
	assert.Contains(t, msg, "1. free up disk space")
	assert.Contains(t, msg, "2. run 'pc-switcher cleanup-snapshots'")
}

func TestClassifiedError_Unwrap(t *testing.T) {
	cause := cerr.New("underlying")
	err := pcs_err.NewRuntimeError("wrapper", cause)
	assert.ErrorIs(t, err, cause)
}

func TestExtractSummary(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "picks error lines",
			output: "reading metadata\nERROR: cannot open /dev/sda1\ndone",
			want:   "ERROR: cannot open /dev/sda1",
		},
		{
			name:   "falls back to first line",
			output: "something odd happened\nmore context",
			want:   "something odd happened",
		},
		{name: "empty output", output: "", want: "No output provided."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pcs_err.ExtractSummary(tt.output, 2))
		})
	}
}
