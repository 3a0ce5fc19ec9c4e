// pkg/eventbus/events.go

package eventbus

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HostRole identifies which side of the sync an event refers to.
type HostRole string

const (
	HostSource HostRole = "source"
	HostTarget HostRole = "target"
)

// Event is the unit flowing through the bus. Immutable once published.
type Event interface {
	When() time.Time
}

// LogEvent carries one structured log line from a producer.
type LogEvent struct {
	Time     time.Time
	Level    zapcore.Level
	Job      string
	Host     HostRole
	Hostname string
	Message  string
	Fields   []zap.Field
}

func (e LogEvent) When() time.Time { return e.Time }

// ProgressUpdate carries at most one numeric form: a percentage, done/total
// counters, a current-item string, or nothing at all (bare heartbeat).
type ProgressUpdate struct {
	Percent *float64
	Done    *int64
	Total   *int64
	Item    string
}

// ProgressEvent reports job progress for the live renderer.
type ProgressEvent struct {
	Time   time.Time
	Job    string
	Host   HostRole
	Update ProgressUpdate
}

func (e ProgressEvent) When() time.Time { return e.Time }

// ConnState describes the remote channel's health.
type ConnState string

const (
	ConnEstablished ConnState = "established"
	ConnDegraded    ConnState = "degraded"
	ConnLost        ConnState = "lost"
	ConnClosed      ConnState = "closed"
)

// ConnectionEvent reports a state change of the remote channel.
type ConnectionEvent struct {
	Time   time.Time
	State  ConnState
	Detail string
}

func (e ConnectionEvent) When() time.Time { return e.Time }
