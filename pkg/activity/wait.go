package activity

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the result of waiting for the monitor to become idle.
// A timeout is an ordinary outcome, not an error.
type Outcome int

const (
	// OutcomeIdle means the monitor was or became idle before the timeout.
	OutcomeIdle Outcome = iota
	// OutcomeTimedOut means the monitor was still active when the timeout elapsed.
	OutcomeTimedOut
	// OutcomeCancelled means the monitor was torn down or the context ended.
	OutcomeCancelled
)

var outcomeNames = map[Outcome]string{
	OutcomeIdle:      "idle",
	OutcomeTimedOut:  "timed_out",
	OutcomeCancelled: "cancelled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	name, ok := outcomeNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown outcome %d", int(o))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for k, v := range outcomeNames {
		if v == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// AwaitInactive blocks until the monitor is idle or timeout elapses.
// An idle monitor resolves immediately. Otherwise state is polled at the
// poll interval, and the timed-out verdict is never given before timeout.
// Teardown or ctx cancellation resolves the wait with OutcomeCancelled.
func (m *Monitor) AwaitInactive(ctx context.Context, timeout time.Duration) Outcome {
	idle, closed := m.poll()
	switch {
	case closed:
		return OutcomeCancelled
	case idle:
		return OutcomeIdle
	}

	if timeout < 0 {
		timeout = 0
	}
	m.mu.Lock()
	interval := m.pollInterval
	m.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idle, closed := m.poll()
			if closed {
				return OutcomeCancelled
			}
			if idle {
				return OutcomeIdle
			}
		case <-deadline.C:
			idle, closed := m.poll()
			if closed {
				return OutcomeCancelled
			}
			if idle {
				return OutcomeIdle
			}
			return OutcomeTimedOut
		case <-m.done:
			return OutcomeCancelled
		case <-ctx.Done():
			return OutcomeCancelled
		}
	}
}

// AwaitInactiveAsync runs AwaitInactive in the background. The returned
// channel yields exactly one outcome and is then closed.
func (m *Monitor) AwaitInactiveAsync(ctx context.Context, timeout time.Duration) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- m.AwaitInactive(ctx, timeout)
	}()
	return ch
}

func (m *Monitor) poll() (idle, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.active, m.closed
}
