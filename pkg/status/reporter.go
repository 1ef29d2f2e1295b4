package status

import (
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// Describe renders a one-line description of a state snapshot.
func Describe(st activity.State, timeout time.Duration) string {
	if !st.Active {
		return fmt.Sprintf("idle (inactivity timeout %s)", timeout)
	}
	return fmt.Sprintf("active, idle in %s at %s (inactivity timeout %s)",
		formatSeconds(activity.DisplayRemaining(st.Remaining)),
		st.Deadline.Format(time.RFC3339),
		timeout)
}

// Print writes Describe to w followed by a newline.
func Print(w io.Writer, st activity.State, timeout time.Duration) error {
	_, err := fmt.Fprintln(w, Describe(st, timeout))
	return err
}
