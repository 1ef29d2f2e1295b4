// Package notification delivers "sync has gone quiet" messages.
package notification

import "time"

// Notification represents a notification to be sent.
type Notification struct {
	Title   string
	Message string
	Time    time.Time
	// Tags are ntfy emoji shortcodes or labels, e.g. "white_check_mark".
	Tags []string
}

// Notifier sends notifications.
type Notifier interface {
	Send(notification Notification) error
}
