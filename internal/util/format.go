// Package util hosts small display helpers shared by the command line tools.
package util //nolint:revive // package name util is kept short for CLI call sites

import (
	"strings"
	"time"
	"unicode/utf8"
)

// FormatProcessingDuration formats a time.Duration for display, handling edge cases.
// Returns "-" for zero or negative durations, truncates to milliseconds for readability.
func FormatProcessingDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobDuration returns the time between start and end, or zero when either is unset.
func JobDuration(start, end *time.Time) time.Duration {
	if start == nil || end == nil {
		return 0
	}
	return end.Sub(*start)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 3 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
