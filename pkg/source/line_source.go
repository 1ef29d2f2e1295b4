package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Veraticus/quiesce/pkg/interfaces"
)

// maxPartialLine caps how much of an unterminated line is held. A longer
// run without '\n' or '\r' is handed on as a line of its own.
const maxPartialLine = 4096

// lineSplitter turns chunks of one stream into lines. Both '\n' and '\r'
// end a line so progress output that redraws in place is seen.
type lineSplitter struct {
	partial []byte
}

// split returns the lines data completes. Empty lines are skipped.
func (l *lineSplitter) split(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			l.partial = append(l.partial, data...)
			if len(l.partial) >= maxPartialLine {
				lines = append(lines, string(l.partial))
				l.partial = l.partial[:0]
			}
			break
		}
		l.partial = append(l.partial, data[:i]...)
		if len(l.partial) > 0 {
			lines = append(lines, string(l.partial))
		}
		l.partial = l.partial[:0]
		data = data[i+1:]
	}
	return lines
}

// flush returns whatever unterminated line is held.
func (l *lineSplitter) flush() string {
	line := string(l.partial)
	l.partial = l.partial[:0]
	return line
}

// LineSource pulses the notifier for every status line the predicate
// accepts. Each stream read through Consume, RunCommand or TailFile is split
// on its own, so several streams can feed one source concurrently.
type LineSource struct {
	predicate LinePredicate
	notifier  interfaces.ActivityNotifier

	mu      sync.Mutex
	pending lineSplitter // HandleData and Flush
	matched int
}

// NewLineSource creates a line source
func NewLineSource(predicate LinePredicate, notifier interfaces.ActivityNotifier) *LineSource {
	return &LineSource{
		predicate: predicate,
		notifier:  notifier,
	}
}

// Ensure LineSource implements DataHandler
var _ interfaces.DataHandler = (*LineSource)(nil)

// HandleData processes raw output data from a single caller's stream. Use
// Consume for each additional stream.
func (s *LineSource) HandleData(data []byte) {
	s.mu.Lock()
	lines := s.pending.split(data)
	s.mu.Unlock()

	for _, line := range lines {
		s.HandleLine(line)
	}
}

// HandleLine implements the OutputHandler interface
func (s *LineSource) HandleLine(line string) {
	if s.predicate == nil || !s.predicate(line) {
		return
	}
	s.mu.Lock()
	s.matched++
	s.mu.Unlock()
	s.notifier.NotifyActivity()
}

// Flush processes any partial line left by HandleData
func (s *LineSource) Flush() {
	s.mu.Lock()
	line := s.pending.flush()
	s.mu.Unlock()

	if line != "" {
		s.HandleLine(line)
	}
}

// Matched returns how many lines counted as activity.
func (s *LineSource) Matched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matched
}

// Consume reads r until EOF or ctx is done, then handles any unterminated
// last line. Lines are split per call, never mixed with other streams.
func (s *LineSource) Consume(ctx context.Context, r io.Reader) error {
	var splitter lineSplitter
	defer func() {
		if line := splitter.flush(); line != "" {
			s.HandleLine(line)
		}
	}()

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.Read(buf)
		for _, line := range splitter.split(buf[:n]) {
			s.HandleLine(line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read status stream: %w", err)
		}
	}
}
