package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"

	"github.com/Veraticus/quiesce/pkg/activity"
)

var (
	// ErrStillActive means the wait timed out and the command was not run.
	ErrStillActive = errors.New("still active after timeout")
	// ErrWaitCancelled means the wait was cancelled before the data went quiet.
	ErrWaitCancelled = errors.New("wait cancelled")
)

// Gate runs a command once the watched data is idle.
type Gate struct {
	waiter  Waiter
	runner  Runner
	timeout time.Duration
	force   bool
	log     *logrus.Entry
}

// NewGate creates a gate waiting at most timeout. With force set the
// command also runs after a timeout.
func NewGate(waiter Waiter, runner Runner, timeout time.Duration, force bool) *Gate {
	return &Gate{
		waiter:  waiter,
		runner:  runner,
		timeout: timeout,
		force:   force,
		log:     logrus.WithField("component", "gate"),
	}
}

// Run waits for quiet, then runs command and returns its exit code.
func (g *Gate) Run(ctx context.Context, command string, args []string) (int, error) {
	started := time.Now()
	outcome, err := g.waiter.Wait(ctx, g.timeout)
	if err != nil {
		return -1, fmt.Errorf("waiting for quiet: %w", err)
	}

	log := g.log.WithFields(logrus.Fields{
		"command": shellquote.Join(append([]string{command}, args...)...),
		"outcome": outcome,
		"waited":  time.Since(started),
	})
	switch outcome {
	case activity.OutcomeIdle:
		log.Debug("quiet, running command")
	case activity.OutcomeTimedOut:
		if !g.force {
			return -1, fmt.Errorf("%w (%s)", ErrStillActive, g.timeout)
		}
		log.Warn("still active, running anyway")
	default:
		return -1, ErrWaitCancelled
	}

	return g.runner.Run(ctx, command, args)
}
