// Package status renders monitor state for humans: a live bottom-line
// indicator and one-shot descriptions.
package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/quiesce/pkg/activity"
	"github.com/Veraticus/quiesce/pkg/interfaces"
)

// Status represents the state of the most recent notification
type Status int

const (
	StatusNone Status = iota
	StatusSending
	StatusSuccess
	StatusFailed
)

// Mode selects how the indicator renders.
type Mode int

const (
	// ModeOff disables all output.
	ModeOff Mode = iota
	// ModeStatusLine draws on the terminal's last line with DEC save/restore.
	ModeStatusLine
	// ModePlain writes one line per change, for pipes and log files.
	ModePlain
)

// Indicator shows whether the watched data is syncing and how long until
// it is considered quiet.
type Indicator struct {
	mu     sync.Mutex
	mode   Mode
	writer io.Writer

	active    bool
	remaining time.Duration
	haveCount bool
	lastBurst time.Duration
	notify    Status

	lastPlain   string
	refreshChan chan struct{}
}

// NewIndicator creates a new status indicator
func NewIndicator(writer io.Writer, mode Mode) *Indicator {
	if writer == nil {
		mode = ModeOff
	}
	return &Indicator{
		mode:        mode,
		writer:      writer,
		refreshChan: make(chan struct{}, 1),
	}
}

var (
	_ activity.CountdownSink = (*Indicator)(nil)
	_ activity.Observer      = (*Indicator)(nil)
)

// PublishCountdown implements activity.CountdownSink
func (i *Indicator) PublishCountdown(remaining time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.active = true
	i.remaining = remaining
	i.haveCount = true
	_ = i.draw()
}

// ActivityStarted implements activity.Observer
func (i *Indicator) ActivityStarted(time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.active = true
	i.haveCount = false
	_ = i.draw()
}

// ActivityEnded implements activity.Observer
func (i *Indicator) ActivityEnded(_ time.Time, activeFor time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.active = false
	i.haveCount = false
	i.lastBurst = activeFor
	_ = i.draw()
}

// SetStatus updates the notification status
func (i *Indicator) SetStatus(status Status) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.notify = status
	_ = i.draw()
}

// Text returns the current status text without escape sequences.
func (i *Indicator) Text() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.statusText(false)
}

// draw renders the indicator. Must be called with mu held.
func (i *Indicator) draw() error {
	switch i.mode {
	case ModeStatusLine:
		// \0337 save cursor, \033[r reset scroll region, \033[999;1H move to
		// the last line, \033[2K clear it, \0338 restore cursor.
		_, err := fmt.Fprintf(i.writer, "\0337\033[r\033[999;1H\033[2K%s\0338", i.statusText(true))
		return err
	case ModePlain:
		text := i.statusText(false)
		if text == i.lastPlain {
			return nil
		}
		i.lastPlain = text
		_, err := fmt.Fprintln(i.writer, text)
		return err
	default:
		return nil
	}
}

func (i *Indicator) statusText(color bool) string {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return "\033[" + code + "m" + s + "\033[0m"
	}

	var parts []string
	if i.active {
		text := "⟳ sync active"
		if i.haveCount {
			text += " " + formatSeconds(i.remaining)
		}
		parts = append(parts, paint("33", text))
	} else {
		text := "✓ idle"
		if i.lastBurst > 0 {
			text += " (last burst " + formatSeconds(activity.DisplayRemaining(i.lastBurst)) + ")"
		}
		parts = append(parts, paint("32", text))
	}

	switch i.notify {
	case StatusSending:
		parts = append(parts, paint("33", "⟳ ntfy"))
	case StatusSuccess:
		parts = append(parts, paint("32", "✓ ntfy"))
	case StatusFailed:
		parts = append(parts, paint("31", "✗ ntfy"))
	}

	return strings.Join(parts, " ")
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d/time.Second))
}

// Clear removes the status line
func (i *Indicator) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.mode != ModeStatusLine {
		return nil
	}
	_, err := fmt.Fprint(i.writer, "\0337\033[999;1H\033[2K\0338")
	return err
}

// Redraw asks the auto-refresh loop to repaint, e.g. after a child process
// has written over the last line.
func (i *Indicator) Redraw() {
	select {
	case i.refreshChan <- struct{}{}:
	default:
	}
}

// StartAutoRefresh repaints the status line every interval and on Redraw
// until stopChan closes, then clears it.
func (i *Indicator) StartAutoRefresh(interval time.Duration, stopChan <-chan struct{}) {
	if i.mode != ModeStatusLine {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
			case <-i.refreshChan:
			case <-stopChan:
				_ = i.Clear()
				return
			}
			i.mu.Lock()
			_ = i.draw()
			i.mu.Unlock()
		}
	}()
}

// Reporter adapts the Indicator to interfaces.StatusReporter
type Reporter struct {
	indicator *Indicator
}

// NewReporter creates a new status reporter
func NewReporter(indicator *Indicator) *Reporter {
	return &Reporter{indicator: indicator}
}

var _ interfaces.StatusReporter = (*Reporter)(nil)

// ReportSending reports that a notification is being sent
func (r *Reporter) ReportSending() {
	if r.indicator != nil {
		r.indicator.SetStatus(StatusSending)
	}
}

// ReportSuccess reports that a notification was sent successfully
func (r *Reporter) ReportSuccess() {
	if r.indicator != nil {
		r.indicator.SetStatus(StatusSuccess)
	}
}

// ReportFailure reports that a notification failed to send
func (r *Reporter) ReportFailure() {
	if r.indicator != nil {
		r.indicator.SetStatus(StatusFailed)
	}
}
