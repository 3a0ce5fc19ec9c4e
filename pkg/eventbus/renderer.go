// pkg/eventbus/renderer.go

package eventbus

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Renderer is the live-terminal consumer. It applies its own minimum
// severity, independent of the log writer's: a quiet terminal does not make
// the log file any less complete.
type Renderer struct {
	log   *zap.Logger
	level zapcore.Level
	isTTY bool

	progressShown bool
}

// NewRenderer wraps a console core (see logger.NewConsoleCore).
func NewRenderer(core zapcore.Core, level zapcore.Level) *Renderer {
	return &Renderer{
		log:   zap.New(core),
		level: level,
		isTTY: term.IsTerminal(int(os.Stderr.Fd())),
	}
}

func (r *Renderer) Handle(ev Event) {
	switch e := ev.(type) {
	case LogEvent:
		if e.Level < r.level {
			return
		}
		r.clearProgress()
		fields := append([]zap.Field{
			zap.String("job", e.Job),
			zap.String("host", string(e.Host)),
		}, e.Fields...)
		r.log.Log(e.Level, e.Message, fields...)

	case ProgressEvent:
		r.renderProgress(e)

	case ConnectionEvent:
		if connLevel(e.State) < r.level {
			return
		}
		r.clearProgress()
		r.log.Log(connLevel(e.State), "connection "+string(e.State), zap.String("detail", e.Detail))
	}
}

// renderProgress rewrites a single status line on a tty; on a pipe it stays
// silent so heartbeats do not flood captured output.
func (r *Renderer) renderProgress(e ProgressEvent) {
	if !r.isTTY {
		return
	}
	switch {
	case e.Update.Percent != nil:
		fmt.Fprintf(os.Stderr, "\r[%s/%s] %5.1f%%  %s\x1b[K", e.Job, e.Host, *e.Update.Percent, e.Update.Item)
	case e.Update.Done != nil && e.Update.Total != nil:
		fmt.Fprintf(os.Stderr, "\r[%s/%s] %d/%d  %s\x1b[K", e.Job, e.Host, *e.Update.Done, *e.Update.Total, e.Update.Item)
	case e.Update.Item != "":
		fmt.Fprintf(os.Stderr, "\r[%s/%s] %s\x1b[K", e.Job, e.Host, e.Update.Item)
	default:
		return // bare heartbeat, nothing worth drawing
	}
	r.progressShown = true
}

func (r *Renderer) clearProgress() {
	if r.progressShown {
		fmt.Fprint(os.Stderr, "\r\x1b[K")
		r.progressShown = false
	}
}
