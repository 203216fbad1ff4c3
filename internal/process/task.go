package process

import (
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/edvin/miniforge/internal/model"
)

// ErrTaskNotFound is returned for unknown or already evicted task ids.
var ErrTaskNotFound = errors.New("task not found")

// Options tunes the build and publish managers.
type Options struct {
	// StopTimeout is the grace between SIGTERM and SIGKILL.
	StopTimeout time.Duration
	// SubscribeTimeout bounds the wait for a log subscriber before a
	// process is started.
	SubscribeTimeout time.Duration
	// GracePeriod is how long a finished publish stays retrievable.
	GracePeriod time.Duration
	Clock       clock.Clock
}

func (o Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.WallClock
	}
	return o.Clock
}

// Kind distinguishes build tasks from publish tasks.
type Kind string

const (
	KindBuild   Kind = "build"
	KindPublish Kind = "publish"
)

// Task is the metadata of a build or publish run.
type Task struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Platform    model.Platform `json:"platform"`
	ProjectPath string         `json:"project_path"`
	StartedAt   time.Time      `json:"started_at"`
}

// outcome turns a finished process into a log message and whether it
// counts as success.
func outcome(what string, res Result) (string, bool) {
	switch {
	case res.Termination != NotRequested:
		return what + " stopped (" + string(res.Termination) + ")", false
	case res.ExitCode != 0:
		return fmt.Sprintf("%s failed with exit code %d", what, res.ExitCode), false
	default:
		return what + " finished", true
	}
}
