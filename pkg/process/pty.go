package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// drainTimeout bounds how long Wait lets CopyIO flush output after exit.
const drainTimeout = time.Second

// PTYManager handles PTY-based process execution
type PTYManager struct {
	cmd         *exec.Cmd
	pty         *os.File
	mu          sync.Mutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
	copying     sync.WaitGroup
	restoreFunc func()
	log         *logrus.Entry
}

// Ensure PTYManager implements PTY
var _ PTY = (*PTYManager)(nil)

// NewPTYManager creates a new PTY manager
func NewPTYManager() *PTYManager {
	return &PTYManager{
		stopChan: make(chan struct{}),
		log:      logrus.WithField("component", "pty"),
	}
}

// Start starts a process with PTY
func (p *PTYManager) Start(command string, args []string, env []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	p.cmd = exec.Command(command, args...)
	p.cmd.Env = env

	var err error
	p.pty, err = pty.Start(p.cmd)
	if err != nil {
		p.cmd = nil
		return fmt.Errorf("failed to start PTY: %w", err)
	}

	// Not fatal: stdin may not be a terminal
	if err := p.copyTerminalSize(); err != nil {
		p.log.WithError(err).Debug("failed to copy terminal size")
	}

	p.wg.Add(1)
	go p.monitorTerminalSize()

	return nil
}

// GetPTY returns the PTY file descriptor
func (p *PTYManager) GetPTY() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pty
}

// Wait waits for the process to complete
func (p *PTYManager) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("process not started")
	}

	err := cmd.Wait()

	close(p.stopChan)
	p.wg.Wait()

	// Let CopyIO drain what the child wrote before it exited
	drained := make(chan struct{})
	go func() {
		p.copying.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		p.log.Debug("output still open after exit, closing PTY")
	}

	p.mu.Lock()
	if p.pty != nil {
		_ = p.pty.Close()
	}
	p.mu.Unlock()

	return err
}

// ProcessState returns the process state
func (p *PTYManager) ProcessState() *os.ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	return p.cmd.ProcessState
}

// Process returns the underlying process
func (p *PTYManager) Process() *os.Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Process
}

// Stop restores the terminal state if CopyIO put it in raw mode
func (p *PTYManager) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.restoreFunc != nil {
		p.restoreFunc()
		p.restoreFunc = nil
	}
	return nil
}

// copyTerminalSize copies the terminal size from stdin to the PTY
func (p *PTYManager) copyTerminalSize() error {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return err
	}
	return pty.Setsize(p.pty, size)
}

// monitorTerminalSize propagates SIGWINCH to the PTY
func (p *PTYManager) monitorTerminalSize() {
	defer p.wg.Done()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			p.mu.Lock()
			if p.pty != nil {
				if err := p.copyTerminalSize(); err != nil {
					p.log.WithError(err).Debug("failed to resize PTY")
				}
			}
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// setRawMode puts fd into raw mode and returns a function restoring it.
func setRawMode(fd int) (func(), error) {
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("fd %d is not a terminal", fd)
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// CopyIO copies stdin to the PTY and the PTY to stdout until the child
// closes its side. handler, if set, sees every output chunk.
func (p *PTYManager) CopyIO(stdin io.Reader, stdout io.Writer, handler func([]byte)) error {
	p.mu.Lock()
	if p.pty == nil {
		p.mu.Unlock()
		return fmt.Errorf("PTY not initialized")
	}
	ptyFile := p.pty
	p.copying.Add(1)
	p.mu.Unlock()
	defer p.copying.Done()

	if file, ok := stdin.(*os.File); ok {
		if restore, err := setRawMode(int(file.Fd())); err == nil {
			p.mu.Lock()
			p.restoreFunc = restore
			p.mu.Unlock()
			defer func() { _ = p.Stop() }()
		}
	}

	// stdin may block forever on a terminal, so only the output side is
	// waited for.
	go func() {
		if _, err := io.Copy(ptyFile, stdin); err != nil {
			p.log.WithError(err).Debug("stdin copy ended")
		}
	}()

	var reader io.Reader = ptyFile
	if handler != nil {
		reader = &outputReader{reader: ptyFile, handler: handler}
	}
	if _, err := io.Copy(stdout, reader); err != nil && !isPTYClosed(err) {
		return fmt.Errorf("stdout copy error: %w", err)
	}
	return nil
}

// isPTYClosed reports the EIO Linux returns once the child side is gone,
// or that Wait already closed the master.
func isPTYClosed(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}

// outputReader wraps a reader and calls a handler for each chunk of data
type outputReader struct {
	reader  io.Reader
	handler func([]byte)
}

func (r *outputReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 && r.handler != nil {
		r.handler(p[:n])
	}
	return n, err
}
