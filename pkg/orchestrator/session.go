// pkg/orchestrator/session.go

package orchestrator

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
)

// State is the session's terminal (or in-flight) state.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateAborted   State = "ABORTED"
)

// JobRecord tracks one job's outcome within a session. Exactly one terminal
// outcome per executed job.
type JobRecord struct {
	Name    string
	Kind    job.Kind
	Outcome job.Outcome
	Err     error
	Started time.Time
	Ended   time.Time
}

// SyncSession is the record of one run.
type SyncSession struct {
	ID             string
	Started        time.Time
	Ended          time.Time
	SourceHostname string
	TargetHostname string
	State          State
	Jobs           []*JobRecord
}

func NewSyncSession(id string) *SyncSession {
	return &SyncSession{ID: id, Started: time.Now(), State: StatePending}
}

// Track registers a job in execution order with a pending outcome.
func (s *SyncSession) Track(j job.Job) *JobRecord {
	rec := &JobRecord{Name: j.Name(), Kind: j.Kind(), Outcome: job.OutcomePending}
	s.Jobs = append(s.Jobs, rec)
	return rec
}

// Finish stamps the terminal state. Pending jobs that never started stay
// pending in the record; the summary prints them as not-run.
func (s *SyncSession) Finish(state State) {
	s.State = state
	s.Ended = time.Now()
}

// Counts tallies outcomes for the final summary line.
func (s *SyncSession) Counts() (succeeded, skipped, failed, cancelled int) {
	for _, rec := range s.Jobs {
		switch rec.Outcome {
		case job.OutcomeSuccess:
			succeeded++
		case job.OutcomeSkipped:
			skipped++
		case job.OutcomeFailed:
			failed++
		case job.OutcomeCancelled:
			cancelled++
		}
	}
	return
}

func (r *JobRecord) start() {
	r.Started = time.Now()
}

func (r *JobRecord) finish(outcome job.Outcome, err error) {
	r.Outcome = outcome
	r.Err = err
	r.Ended = time.Now()
}
