package source

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// commandWaitDelay bounds how long Wait blocks on inherited pipes after the
// process group has been killed.
const commandWaitDelay = 2 * time.Second

// RunCommand starts command through the shell and consumes its stdout until
// it exits or ctx is done. Cancellation kills the whole process group so
// grandchildren holding the pipe do not keep the read open.
func (s *LineSource) RunCommand(ctx context.Context, command string) error {
	// #nosec G204 - The status command comes from the user's own config
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = commandWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("status command pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start status command: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{"component": "status-cmd", "command": command})
	log.Debug("status command started")

	consumeErr := s.Consume(ctx, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return fmt.Errorf("status command exited: %w", waitErr)
	}
	log.Debug("status command finished")
	return nil
}
