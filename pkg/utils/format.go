// Package utils provides small formatting and filesystem helpers shared by
// the CLI and the core packages.
package utils

import (
	"fmt"
	"time"
)

// FormatBytes converts bytes to a human-readable format (KB, MB, GB, etc.).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders a duration at a resolution fitting its magnitude:
// sub-second with millisecond precision, sub-minute with one decimal of
// seconds, longer spans as h/m/s components.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm%ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
}

// FormatThroughput renders a transfer rate from a byte count and duration.
func FormatThroughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	perSecond := int64(float64(bytes) / d.Seconds())
	return FormatBytes(perSecond) + "/s"
}
