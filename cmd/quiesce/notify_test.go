package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/quiesce/pkg/activity"
	"github.com/Veraticus/quiesce/pkg/interfaces"
	"github.com/Veraticus/quiesce/pkg/notification"
	"github.com/Veraticus/quiesce/pkg/testutil"
)

// burst drives m through one ACTIVE period and waits for it to end.
func burst(t *testing.T, m *activity.Monitor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.NotifyActivity()
	require.Equal(t, activity.OutcomeIdle, m.AwaitInactive(ctx, 5*time.Second))
}

func newChain(t *testing.T, limiter interfaces.RateLimiter) (*activity.Monitor, *testutil.MockNotifier, *notification.IdleNotifier) {
	t.Helper()
	mock := testutil.NewMockNotifier()
	idle := notification.NewIdleNotifier(notification.NewManager(mock, limiter, nil), 0)
	m := activity.New(
		activity.WithInactivityTimeout(50*time.Millisecond),
		activity.WithPollInterval(5*time.Millisecond),
		activity.WithObserver(idle),
	)
	t.Cleanup(func() {
		m.Teardown()
		_ = idle.Close()
	})
	return m, mock, idle
}

func TestIdleNotificationChain(t *testing.T) {
	m, mock, _ := newChain(t, nil)

	burst(t, m)
	n, ok := mock.WaitForNotification(2 * time.Second)
	require.True(t, ok, "a quiet period should be announced")
	assert.Equal(t, "Sync quiescent", n.Title)
	assert.True(t, strings.HasPrefix(n.Message, "No activity since "), n.Message)
}

func TestIdleNotificationChain_RateLimited(t *testing.T) {
	limiter := testutil.NewCountingRateLimiter(1)
	m, mock, _ := newChain(t, limiter)

	burst(t, m)
	_, ok := mock.WaitForNotification(2 * time.Second)
	require.True(t, ok)

	burst(t, m)
	_, ok = mock.WaitForNotification(200 * time.Millisecond)
	assert.False(t, ok, "second burst exceeds the limit")
	assert.Len(t, mock.GetAttempts(), 1)
}

func TestIdleNotificationChain_LimiterConsulted(t *testing.T) {
	limiter := testutil.NewMockRateLimiter(false)
	m, mock, _ := newChain(t, limiter)

	burst(t, m)
	assert.Eventually(t, func() bool { return limiter.GetAllowCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, mock.GetAttempts())
}
