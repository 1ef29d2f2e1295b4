// Package process runs a command once the monitored data has gone quiet.
package process

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// PTY defines the interface for PTY operations
type PTY interface {
	Start(command string, args []string, env []string) error
	Wait() error
	ProcessState() *os.ProcessState
	Process() *os.Process
	GetPTY() *os.File
	CopyIO(stdin io.Reader, stdout io.Writer, handler func([]byte)) error
	Stop() error
}

// Waiter blocks until the watched data is idle or timeout elapses.
// *control.Client satisfies it; MonitorWaiter adapts an in-process monitor.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (activity.Outcome, error)
}

// Runner executes a command and reports its exit code.
type Runner interface {
	Run(ctx context.Context, command string, args []string) (int, error)
}

// MonitorWaiter adapts *activity.Monitor to Waiter.
type MonitorWaiter struct {
	Monitor *activity.Monitor
}

// Wait implements Waiter
func (w MonitorWaiter) Wait(ctx context.Context, timeout time.Duration) (activity.Outcome, error) {
	return w.Monitor.AwaitInactive(ctx, timeout), nil
}
