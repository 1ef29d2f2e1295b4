package testutil

import (
	"sync"
	"time"

	"github.com/Veraticus/quiesce/pkg/notification"
)

// MockNotifier records notifications for testing. Sends may be observed
// asynchronously through WaitForNotification.
type MockNotifier struct {
	mu            sync.Mutex
	notifications []notification.Notification
	attempts      []notification.Notification
	sendErr       error
	sent          chan notification.Notification
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		sent: make(chan notification.Notification, 64),
	}
}

// Send implements the Notifier interface
func (m *MockNotifier) Send(n notification.Notification) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, n)
	err := m.sendErr
	if err == nil {
		m.notifications = append(m.notifications, n)
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	select {
	case m.sent <- n:
	default:
	}
	return nil
}

// GetNotifications returns a copy of successfully sent notifications
func (m *MockNotifier) GetNotifications() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.notifications...)
}

// GetAttempts returns a copy of all attempted sends, failures included
func (m *MockNotifier) GetAttempts() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.attempts...)
}

// WaitForNotification returns the next successful send, or false after timeout
func (m *MockNotifier) WaitForNotification(timeout time.Duration) (notification.Notification, bool) {
	select {
	case n := <-m.sent:
		return n, true
	case <-time.After(timeout):
		return notification.Notification{}, false
	}
}

// SetError sets the error to return on Send calls
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Clear resets the mock state
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = nil
	m.attempts = nil
	m.sendErr = nil
}

// MockActivityNotifier counts activity pulses for testing
type MockActivityNotifier struct {
	mu     sync.Mutex
	count  int
	pulses chan struct{}
}

// NewMockActivityNotifier creates a new mock activity notifier
func NewMockActivityNotifier() *MockActivityNotifier {
	return &MockActivityNotifier{
		pulses: make(chan struct{}, 1024),
	}
}

// NotifyActivity implements the ActivityNotifier interface
func (m *MockActivityNotifier) NotifyActivity() {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()

	select {
	case m.pulses <- struct{}{}:
	default:
	}
}

// Count returns how many pulses were received
func (m *MockActivityNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// WaitForPulse blocks until a pulse arrives or timeout elapses
func (m *MockActivityNotifier) WaitForPulse(timeout time.Duration) bool {
	select {
	case <-m.pulses:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Drain discards buffered pulses without resetting Count
func (m *MockActivityNotifier) Drain() {
	for {
		select {
		case <-m.pulses:
		default:
			return
		}
	}
}

// MockRateLimiter is a mock implementation of interfaces.RateLimiter for testing
type MockRateLimiter struct {
	mu          sync.Mutex
	allowResult bool
	allowCount  int
	resetCount  int
}

// NewMockRateLimiter creates a new mock rate limiter
func NewMockRateLimiter(allowResult bool) *MockRateLimiter {
	return &MockRateLimiter{
		allowResult: allowResult,
	}
}

// Allow implements the RateLimiter interface
func (m *MockRateLimiter) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowCount++
	return m.allowResult
}

// Reset implements the RateLimiter interface
func (m *MockRateLimiter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCount++
}

// SetAllowResult sets the result that Allow() will return
func (m *MockRateLimiter) SetAllowResult(allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowResult = allow
}

// GetAllowCount returns how many times Allow was called
func (m *MockRateLimiter) GetAllowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowCount
}

// GetResetCount returns how many times Reset was called
func (m *MockRateLimiter) GetResetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCount
}

// CountingRateLimiter is a rate limiter that allows first N calls
type CountingRateLimiter struct {
	mu           sync.Mutex
	maxAllowed   int
	currentCount int
}

// NewCountingRateLimiter creates a new counting rate limiter
func NewCountingRateLimiter(maxAllowed int) *CountingRateLimiter {
	return &CountingRateLimiter{
		maxAllowed: maxAllowed,
	}
}

// Allow implements the RateLimiter interface
func (c *CountingRateLimiter) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentCount++
	return c.currentCount <= c.maxAllowed
}

// Reset implements the RateLimiter interface
func (c *CountingRateLimiter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentCount = 0
}
