package notification

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// StdoutNotifier prints notifications, for running without an ntfy topic
type StdoutNotifier struct {
	w io.Writer
}

// NewStdoutNotifier creates a notifier writing to w, or stdout when w is nil
func NewStdoutNotifier(w io.Writer) *StdoutNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutNotifier{w: w}
}

// Send prints the notification
func (n *StdoutNotifier) Send(notification Notification) error {
	stamp := ""
	if !notification.Time.IsZero() {
		stamp = notification.Time.Format(time.TimeOnly) + " "
	}
	tags := ""
	if len(notification.Tags) > 0 {
		tags = " [" + strings.Join(notification.Tags, ",") + "]"
	}
	_, err := fmt.Fprintf(n.w, "%s[NOTIFICATION] %s: %s%s\n", stamp, notification.Title, notification.Message, tags)
	return err
}
