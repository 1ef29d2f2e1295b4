package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver records transitions for assertions.
type recordingObserver struct {
	mu      sync.Mutex
	events  []string
	started int
	ended   int
	lastFor time.Duration
}

func (r *recordingObserver) ActivityStarted(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.events = append(r.events, "started")
}

func (r *recordingObserver) ActivityEnded(_ time.Time, activeFor time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
	r.lastFor = activeFor
	r.events = append(r.events, "ended")
}

func (r *recordingObserver) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.ended
}

func (r *recordingObserver) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func isIdle(m *Monitor) func() bool {
	return func() bool { return !m.CurrentState().Active }
}

func TestMonitor_StartsIdle(t *testing.T) {
	m := New()
	defer m.Teardown()

	st := m.CurrentState()
	assert.False(t, st.Active)
	assert.True(t, st.Deadline.IsZero())
	_, ok := st.RemainingMs()
	assert.False(t, ok, "idle state has no remaining time")
}

func TestMonitor_ActiveThenIdleAfterTimeout(t *testing.T) {
	m := New(WithInactivityTimeout(200 * time.Millisecond))
	defer m.Teardown()

	m.NotifyActivity()
	time.Sleep(100 * time.Millisecond)

	st := m.CurrentState()
	require.True(t, st.Active, "should be active halfway through the window")
	ms, ok := st.RemainingMs()
	require.True(t, ok)
	assert.InDelta(t, 100, ms, 60)

	require.Eventually(t, isIdle(m), time.Second, 5*time.Millisecond)
	assert.True(t, m.CurrentState().Deadline.IsZero())
}

func TestMonitor_RearmExtendsDeadline(t *testing.T) {
	obs := &recordingObserver{}
	m := New(WithInactivityTimeout(400*time.Millisecond), WithObserver(obs))
	defer m.Teardown()

	start := time.Now()
	m.NotifyActivity()
	time.Sleep(300 * time.Millisecond)
	m.NotifyActivity()

	// Past the first deadline; the second signal moved it to ~700ms.
	time.Sleep(200 * time.Millisecond)
	require.True(t, m.CurrentState().Active, "second signal should have re-armed the timer")

	require.Eventually(t, isIdle(m), 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)

	started, ended := obs.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ended)
}

func TestMonitor_BurstCollapsesIntoOneActivePeriod(t *testing.T) {
	obs := &recordingObserver{}
	m := New(WithInactivityTimeout(100*time.Millisecond), WithObserver(obs))
	defer m.Teardown()

	for i := 0; i < 10; i++ {
		m.NotifyActivity()
		time.Sleep(20 * time.Millisecond)
		require.True(t, m.CurrentState().Active, "burst signal %d should keep the monitor active", i)
	}

	started, ended := obs.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 0, ended)

	require.Eventually(t, isIdle(m), time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ended := obs.counts()
		return ended == 1
	}, time.Second, 5*time.Millisecond)

	obs.mu.Lock()
	lastFor := obs.lastFor
	obs.mu.Unlock()
	assert.GreaterOrEqual(t, lastFor, 250*time.Millisecond)
	assert.Equal(t, []string{"started", "ended"}, obs.sequence())
}

func TestMonitor_CurrentStateIsReadOnly(t *testing.T) {
	m := New(WithInactivityTimeout(300 * time.Millisecond))
	defer m.Teardown()

	m.NotifyActivity()

	prev := m.CurrentState()
	for i := 0; i < 20; i++ {
		time.Sleep(5 * time.Millisecond)
		st := m.CurrentState()
		require.True(t, st.Active)
		assert.Equal(t, prev.Deadline, st.Deadline)
		assert.LessOrEqual(t, st.Remaining, prev.Remaining)
		prev = st
	}
}

func TestMonitor_SetInactivityTimeoutAppliesToNextSignal(t *testing.T) {
	m := New(WithInactivityTimeout(time.Second))
	defer m.Teardown()

	m.NotifyActivity()
	m.SetInactivityTimeout(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.InactivityTimeout())

	time.Sleep(150 * time.Millisecond)
	require.True(t, m.CurrentState().Active, "armed timer keeps its original deadline")

	m.NotifyActivity()
	require.Eventually(t, isIdle(m), 500*time.Millisecond, 5*time.Millisecond)
}

func TestMonitor_NegativeTimeoutClampsToZero(t *testing.T) {
	m := New(WithInactivityTimeout(-time.Second))
	defer m.Teardown()
	assert.Equal(t, time.Duration(0), m.InactivityTimeout())

	m.SetInactivityTimeout(-5 * time.Millisecond)
	assert.Equal(t, time.Duration(0), m.InactivityTimeout())

	m.NotifyActivity()
	require.Eventually(t, isIdle(m), 500*time.Millisecond, time.Millisecond)
}

func TestMonitor_TeardownStopsTransitions(t *testing.T) {
	obs := &recordingObserver{}
	m := New(WithInactivityTimeout(50*time.Millisecond), WithObserver(obs))

	m.NotifyActivity()
	m.Teardown()

	time.Sleep(150 * time.Millisecond)

	st := m.CurrentState()
	assert.True(t, st.Active, "no transition may fire after teardown")
	started, ended := obs.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 0, ended)

	// Signals after teardown are ignored.
	deadline := st.Deadline
	m.NotifyActivity()
	assert.Equal(t, deadline, m.CurrentState().Deadline)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done should be closed after teardown")
	}

	// Idempotent.
	m.Teardown()
}

func TestMonitor_AddObserver(t *testing.T) {
	m := New(WithInactivityTimeout(30 * time.Millisecond))
	defer m.Teardown()

	obs := &recordingObserver{}
	m.AddObserver(obs)
	m.AddObserver(nil)

	m.NotifyActivity()
	require.Eventually(t, func() bool {
		_, ended := obs.counts()
		return ended == 1
	}, time.Second, 5*time.Millisecond)
}
