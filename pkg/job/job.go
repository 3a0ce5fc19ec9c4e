// pkg/job/job.go
//
// The lifecycle contract every sync capability implements. Config checking,
// live-state validation and execution are separate phases so the
// orchestrator can fail fast before connecting and abort cleanly before
// mutating anything.

package job

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
)

// Kind tags a job's scheduling capability. A closed set beats deep
// subclassing: new jobs pick a tag and register.
type Kind int

const (
	// KindSystem jobs always run and cannot be disabled.
	KindSystem Kind = iota
	// KindConfigurable jobs run only when listed in jobs.enabled.
	KindConfigurable
	// KindBackground jobs run alongside the sequential runner for the
	// whole execution window; returning an error aborts the run.
	KindBackground
)

// Job is one schedulable unit of sync work.
type Job interface {
	// Name is stable and unique; it keys config settings and log lines.
	Name() string

	// Kind controls how the orchestrator schedules the job.
	Kind() Kind

	// ValidateConfig is a pure schema-plus-semantics check against the
	// loaded configuration. It must not touch the live system; it is
	// called before any connection exists.
	ValidateConfig(cfg *config.Config) []error

	// Validate checks live system state once every job's config is known
	// good, before any mutating job executes.
	Validate(ctx context.Context, jc *Context) []error

	// Execute performs the work. It must honor ctx cancellation at every
	// suspension point, release anything it acquired, and return the
	// cancellation error onward.
	Execute(ctx context.Context, jc *Context) error
}

// Outcome is a job's terminal state within one session.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Skip is returned by Execute when a job determines it has nothing to do.
// The orchestrator records the job as cleanly skipped, not failed.
type Skip struct {
	Reason string
}

func (s *Skip) Error() string { return "skipped: " + s.Reason }
