// Package source turns external observations (file-system events, sync
// status lines) into activity pulses. Deciding what counts as activity is
// the job of this package's predicates, never of the monitor.
package source

import (
	"github.com/Veraticus/quiesce/pkg/config"
)

// LinePredicate reports whether a status line describes activity.
type LinePredicate func(line string) bool

// StatusClassifier matches vendor sync-status strings against activity and
// ignore patterns. An ignore match vetoes any activity match.
type StatusClassifier struct {
	activity []config.Pattern
	ignore   []config.Pattern
}

// NewStatusClassifier creates a classifier from compiled patterns. Disabled
// or uncompiled patterns are dropped.
func NewStatusClassifier(activity, ignore []config.Pattern) *StatusClassifier {
	return &StatusClassifier{
		activity: enabledPatterns(activity),
		ignore:   enabledPatterns(ignore),
	}
}

func enabledPatterns(patterns []config.Pattern) []config.Pattern {
	enabled := make([]config.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Enabled && p.CompiledRegex() != nil {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Classify returns the name of the first activity pattern matching line.
// ok is false when nothing matched or an ignore pattern matched.
func (c *StatusClassifier) Classify(line string) (name string, ok bool) {
	for _, p := range c.ignore {
		if p.CompiledRegex().MatchString(line) {
			return "", false
		}
	}
	for _, p := range c.activity {
		if p.CompiledRegex().MatchString(line) {
			return p.Name, true
		}
	}
	return "", false
}

// IsActivity is Classify as a LinePredicate.
func (c *StatusClassifier) IsActivity(line string) bool {
	_, ok := c.Classify(line)
	return ok
}

// Patterns returns the active activity patterns
func (c *StatusClassifier) Patterns() []config.Pattern {
	return c.activity
}

// AnyLine accepts a line if any predicate accepts it.
func AnyLine(predicates ...LinePredicate) LinePredicate {
	return func(line string) bool {
		for _, p := range predicates {
			if p != nil && p(line) {
				return true
			}
		}
		return false
	}
}

// NotLine inverts a line predicate.
func NotLine(p LinePredicate) LinePredicate {
	return func(line string) bool { return !p(line) }
}
