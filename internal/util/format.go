package util //nolint:revive // package name util hosts shared formatting helpers used by the CLI

import "time"

// FormatProcessingDuration formats how long a report took to generate.
// Zero or negative durations render as "-"; sub-millisecond values keep full precision.
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

// ProcessingDuration returns generatedAt-startedAt, or zero when either is unknown.
func ProcessingDuration(startedAt, generatedAt *time.Time) time.Duration {
	if startedAt == nil || generatedAt == nil {
		return 0
	}
	return generatedAt.Sub(*startedAt)
}
