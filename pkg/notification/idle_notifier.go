package notification

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// idleQueueSize bounds pending notifications. Observers must not block the
// monitor, so a full queue drops.
const idleQueueSize = 16

// Sender is satisfied by Manager and by any Notifier.
type Sender interface {
	Send(notification Notification) error
}

// IdleNotifier announces ACTIVE→IDLE transitions. Delivery happens on its
// own goroutine.
type IdleNotifier struct {
	sender    Sender
	minActive time.Duration
	queue     chan Notification
	log       *logrus.Entry

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewIdleNotifier starts a notifier. Bursts shorter than minActive are not
// reported.
func NewIdleNotifier(sender Sender, minActive time.Duration) *IdleNotifier {
	n := &IdleNotifier{
		sender:    sender,
		minActive: minActive,
		queue:     make(chan Notification, idleQueueSize),
		log:       logrus.WithField("component", "idle-notifier"),
	}
	n.wg.Add(1)
	go n.deliver()
	return n
}

var _ activity.Observer = (*IdleNotifier)(nil)

// ActivityStarted implements activity.Observer
func (n *IdleNotifier) ActivityStarted(time.Time) {}

// ActivityEnded implements activity.Observer
func (n *IdleNotifier) ActivityEnded(at time.Time, activeFor time.Duration) {
	if activeFor < n.minActive {
		n.log.WithField("active_for", activeFor).Debug("burst too short to report")
		return
	}

	notification := Notification{
		Title:   "Sync quiescent",
		Message: fmt.Sprintf("No activity since %s after %s of syncing", at.Format(time.TimeOnly), activeFor.Round(100*time.Millisecond)),
		Time:    at,
		Tags:    []string{"white_check_mark"},
	}

	select {
	case n.queue <- notification:
	default:
		n.log.Warn("notification queue full, dropping")
	}
}

func (n *IdleNotifier) deliver() {
	defer n.wg.Done()
	for notification := range n.queue {
		err := n.sender.Send(notification)
		switch {
		case errors.Is(err, ErrRateLimited):
		case err != nil:
			n.log.WithError(err).Warn("failed to deliver idle notification")
		}
	}
}

// Close stops accepting notifications and waits for queued ones to be sent.
// ActivityEnded must not be called after Close.
func (n *IdleNotifier) Close() error {
	n.closeOnce.Do(func() { close(n.queue) })
	n.wg.Wait()
	return nil
}
