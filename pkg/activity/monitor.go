// Package activity derives a binary ACTIVE/IDLE state from a stream of
// activity signals using an always-reset inactivity timer.
package activity

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultInactivityTimeout is the debounce window used when none is configured.
	DefaultInactivityTimeout = 2 * time.Second
	// DefaultPollInterval is how often AwaitInactive re-checks state.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultRefreshInterval is the countdown publishing cadence.
	DefaultRefreshInterval = time.Second
)

// State is a snapshot of the monitor.
type State struct {
	Active bool
	// Deadline is when the monitor becomes idle absent further signals.
	// Zero while idle.
	Deadline time.Time
	// Remaining is max(0, Deadline-now) at the time of the snapshot.
	Remaining time.Duration
}

// RemainingMs returns the remaining debounce window in milliseconds and
// false when the monitor is idle.
func (s State) RemainingMs() (int64, bool) {
	if !s.Active {
		return 0, false
	}
	return s.Remaining.Milliseconds(), true
}

// Observer is told about ACTIVE/IDLE transitions.
// Implementations must not call NotifyActivity or Teardown.
type Observer interface {
	ActivityStarted(at time.Time)
	ActivityEnded(at time.Time, activeFor time.Duration)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInactivityTimeout sets the initial debounce window.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.timeout = clampTimeout(d) }
}

// WithPollInterval sets the AwaitInactive poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithRefreshInterval sets the countdown publishing cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.refreshInterval = d
		}
	}
}

// WithCountdownSink sets where the countdown is published while active.
func WithCountdownSink(sink CountdownSink) Option {
	return func(m *Monitor) { m.sink = sink }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// Monitor is the activity debouncer. It is the only writer of its state.
type Monitor struct {
	// seq serializes units of work: notify, expiry, countdown ticks and
	// teardown. Lock order is seq then mu.
	seq sync.Mutex
	// mu guards the fields below and is the only lock readers take.
	mu sync.Mutex

	timeout         time.Duration
	pollInterval    time.Duration
	refreshInterval time.Duration
	sink            CountdownSink
	observers       []Observer

	active      bool
	deadline    time.Time
	activeSince time.Time
	epoch       uint64
	timer       *time.Timer
	countdown   *countdown
	closed      bool
	done        chan struct{}

	log *logrus.Entry
}

// New creates a monitor in the IDLE state.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		timeout:         DefaultInactivityTimeout,
		pollInterval:    DefaultPollInterval,
		refreshInterval: DefaultRefreshInterval,
		done:            make(chan struct{}),
		log:             logrus.WithField("component", "activity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddObserver registers a transition observer after construction.
func (m *Monitor) AddObserver(o Observer) {
	if o == nil {
		return
	}
	m.seq.Lock()
	defer m.seq.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, o)
}

// NotifyActivity records an activity signal. It (re)arms the single
// inactivity timer for now+timeout and supersedes any pending one.
func (m *Monitor) NotifyActivity() {
	m.seq.Lock()
	defer m.seq.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	started := !m.active

	m.epoch++
	epoch := m.epoch
	m.deadline = now.Add(m.timeout)
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() { m.expire(epoch) })

	if started {
		m.active = true
		m.activeSince = now
		m.startCountdown()
	}
	deadline := m.deadline
	observers := m.observers
	m.mu.Unlock()

	if !started {
		return
	}

	m.log.WithField("deadline", deadline).Debug("activity started")
	for _, o := range observers {
		o.ActivityStarted(now)
	}
}

// expire is the timer callback. Only the currently armed timer is honoured.
func (m *Monitor) expire(epoch uint64) {
	m.seq.Lock()
	defer m.seq.Unlock()

	m.mu.Lock()
	if m.closed || epoch != m.epoch || !m.active {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	activeFor := now.Sub(m.activeSince)
	m.active = false
	m.deadline = time.Time{}
	m.timer = nil
	m.stopCountdown()
	observers := m.observers
	m.mu.Unlock()

	m.log.WithField("active_for", activeFor).Debug("activity ended")
	for _, o := range observers {
		o.ActivityEnded(now, activeFor)
	}
}

// CurrentState returns a snapshot. It never blocks on in-flight observers
// and never mutates state.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked(time.Now())
}

func (m *Monitor) snapshotLocked(now time.Time) State {
	if !m.active {
		return State{}
	}
	remaining := m.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return State{
		Active:    true,
		Deadline:  m.deadline,
		Remaining: remaining,
	}
}

// SetInactivityTimeout changes the debounce window. The new value applies
// from the next NotifyActivity; an armed timer keeps its deadline.
func (m *Monitor) SetInactivityTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeout = clampTimeout(d)
}

// InactivityTimeout returns the configured debounce window.
func (m *Monitor) InactivityTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.timeout
}

// Teardown cancels the pending timer and countdown and resolves every
// outstanding wait. The monitor does not change state afterwards.
// Teardown is idempotent.
func (m *Monitor) Teardown() {
	m.seq.Lock()
	defer m.seq.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.stopCountdown()
	close(m.done)
	m.log.Debug("monitor torn down")
}

// Done is closed by Teardown.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func clampTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
