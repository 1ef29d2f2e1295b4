package notification

import (
	"os"
	"path/filepath"
	"strings"
)

// ContextNotifier wraps another notifier and prefixes titles with where the
// event happened: the host name and the watched root's basename.
type ContextNotifier struct {
	underlying Notifier
	context    string
}

// NewContextNotifier creates a new context notifier for root
func NewContextNotifier(underlying Notifier, root string) *ContextNotifier {
	host, _ := os.Hostname()
	return newContextNotifier(underlying, host, root)
}

func newContextNotifier(underlying Notifier, host, root string) *ContextNotifier {
	host, _, _ = strings.Cut(host, ".")

	base := ""
	if root != "" {
		base = filepath.Base(filepath.Clean(root))
		if base == "." || base == string(filepath.Separator) {
			base = ""
		}
	}

	var parts []string
	for _, p := range []string{host, base} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	return &ContextNotifier{
		underlying: underlying,
		context:    strings.Join(parts, ":"),
	}
}

// Send implements the Notifier interface
func (cn *ContextNotifier) Send(notification Notification) error {
	if cn.context != "" {
		if notification.Title == "" {
			notification.Title = cn.context
		} else {
			notification.Title = cn.context + " - " + notification.Title
		}
	}
	return cn.underlying.Send(notification)
}
