package notification

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Veraticus/quiesce/pkg/interfaces"
)

// ErrRateLimited is returned by Manager.Send when a notification is dropped.
var ErrRateLimited = errors.New("notification rate limited")

// Manager applies rate limiting and reports delivery progress around a
// Notifier.
type Manager struct {
	notifier    Notifier
	rateLimiter interfaces.RateLimiter
	reporter    interfaces.StatusReporter
	log         *logrus.Entry
}

// NewManager creates a new notification manager. rateLimiter and reporter
// may be nil.
func NewManager(notifier Notifier, rateLimiter interfaces.RateLimiter, reporter interfaces.StatusReporter) *Manager {
	return &Manager{
		notifier:    notifier,
		rateLimiter: rateLimiter,
		reporter:    reporter,
		log:         logrus.WithField("component", "notification"),
	}
}

// Send delivers notification unless the rate limit is exhausted.
func (m *Manager) Send(notification Notification) error {
	if m.rateLimiter != nil && !m.rateLimiter.Allow() {
		m.log.WithField("title", notification.Title).Debug("dropping rate-limited notification")
		return ErrRateLimited
	}

	if m.reporter != nil {
		m.reporter.ReportSending()
	}

	if err := m.notifier.Send(notification); err != nil {
		m.log.WithError(err).Warn("notification failed")
		if m.reporter != nil {
			m.reporter.ReportFailure()
		}
		return err
	}

	if m.reporter != nil {
		m.reporter.ReportSuccess()
	}
	return nil
}
