package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// GatedEnv is set in the environment of every command quiesce runs.
const GatedEnv = "QUIESCE_GATED"

// Manager runs one command in a pseudo-terminal, forwarding signals and
// terminal I/O.
type Manager struct {
	ptyManager    PTY
	outputHandler func([]byte)
	stdin         io.Reader
	stdout        io.Writer
	exitCode      int
	mu            sync.Mutex
	sigChan       chan os.Signal
	done          chan struct{}
	copyDone      chan struct{}
	log           *logrus.Entry
}

var _ Runner = (*Manager)(nil)

// NewManager creates a process manager attached to the current terminal.
// outputHandler, if set, sees every chunk the child writes.
func NewManager(outputHandler func([]byte)) *Manager {
	return &Manager{
		ptyManager:    NewPTYManager(),
		outputHandler: outputHandler,
		stdin:         os.Stdin,
		stdout:        os.Stdout,
		done:          make(chan struct{}),
		copyDone:      make(chan struct{}),
		log:           logrus.WithField("component", "process"),
	}
}

// Start starts the command
func (m *Manager) Start(command string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	env := append(os.Environ(), GatedEnv+"=1")
	if err := m.ptyManager.Start(command, args, env); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	go func() {
		defer close(m.copyDone)
		if err := m.ptyManager.CopyIO(m.stdin, m.stdout, m.outputHandler); err != nil {
			m.log.WithError(err).Debug("I/O copy ended")
		}
	}()

	m.setupSignalForwarding()
	return nil
}

// Wait waits for the process to exit. A non-zero exit is reported through
// ExitCode, not as an error.
func (m *Manager) Wait() error {
	if m.ptyManager == nil {
		return fmt.Errorf("process not started")
	}

	err := m.ptyManager.Wait()

	m.mu.Lock()
	if st := m.ptyManager.ProcessState(); st != nil {
		m.exitCode = st.ExitCode()
	}
	m.mu.Unlock()

	_ = m.ptyManager.Stop()
	close(m.done)
	m.cleanupSignals()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// ExitCode returns the exit code of the process
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// Run implements Runner. Cancelling ctx stops the child.
func (m *Manager) Run(ctx context.Context, command string, args []string) (int, error) {
	if err := m.Start(command, args); err != nil {
		return -1, err
	}

	stopOnCancel := make(chan struct{})
	defer close(stopOnCancel)
	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-stopOnCancel:
		}
	}()

	if err := m.Wait(); err != nil {
		return m.ExitCode(), err
	}
	return m.ExitCode(), nil
}

func (m *Manager) setupSignalForwarding() {
	m.sigChan = make(chan os.Signal, 1)
	signal.Notify(m.sigChan,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGQUIT,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)

	go m.forwardSignals(m.sigChan)
}

func (m *Manager) forwardSignals(sigChan <-chan os.Signal) {
	for {
		select {
		case sig := <-sigChan:
			if proc := m.ptyManager.Process(); proc != nil {
				if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
					m.log.WithError(err).WithField("signal", sig).Warn("signal forward failed")
				}
			}
		case <-m.done:
			return
		}
	}
}

func (m *Manager) cleanupSignals() {
	if m.sigChan != nil {
		signal.Stop(m.sigChan)
	}
}

// Stop restores the terminal and asks the child to terminate
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptyManager == nil {
		return nil
	}
	_ = m.ptyManager.Stop()

	proc := m.ptyManager.Process()
	if proc == nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return proc.Kill()
	}
	return nil
}

// ExecRunner runs commands with inherited stdio, for when there is no
// terminal to share.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var _ Runner = (*ExecRunner)(nil)

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, command string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), GatedEnv+"=1")
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	case err != nil:
		return -1, fmt.Errorf("run %s: %w", command, err)
	}
	return 0, nil
}
