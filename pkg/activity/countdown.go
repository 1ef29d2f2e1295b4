package activity

import "time"

// CountdownSink receives the time remaining until the monitor may go idle.
// It is called only while the monitor is active.
type CountdownSink interface {
	PublishCountdown(remaining time.Duration)
}

// CountdownSinkFunc adapts a function to CountdownSink.
type CountdownSinkFunc func(remaining time.Duration)

// PublishCountdown implements CountdownSink.
func (f CountdownSinkFunc) PublishCountdown(remaining time.Duration) {
	f(remaining)
}

// DisplayRemaining rounds d up to the next whole second and never returns
// a negative value.
func DisplayRemaining(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// countdown is one ACTIVE period's refresh loop.
type countdown struct {
	stop chan struct{}
}

// startCountdown must be called with mu held on the IDLE→ACTIVE edge.
func (m *Monitor) startCountdown() {
	if m.sink == nil {
		return
	}
	c := &countdown{stop: make(chan struct{})}
	m.countdown = c
	go m.runCountdown(c, m.sink, m.refreshInterval)
}

// stopCountdown must be called with mu held.
func (m *Monitor) stopCountdown() {
	if m.countdown == nil {
		return
	}
	close(m.countdown.stop)
	m.countdown = nil
}

func (m *Monitor) runCountdown(c *countdown, sink CountdownSink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if !m.publishCountdown(c, sink) {
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if !m.publishCountdown(c, sink) {
				return
			}
		}
	}
}

// publishCountdown runs as a unit of work so it cannot interleave with a
// transition.
func (m *Monitor) publishCountdown(c *countdown, sink CountdownSink) bool {
	m.seq.Lock()
	defer m.seq.Unlock()

	select {
	case <-c.stop:
		return false
	default:
	}

	st := m.CurrentState()
	if !st.Active {
		return false
	}
	sink.PublishCountdown(DisplayRemaining(st.Remaining))
	return true
}
