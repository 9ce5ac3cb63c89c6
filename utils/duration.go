package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(?i)^(?:(\d+)d)?\s*(?:(\d+)h)?\s*(?:(\d+)m)?\s*(?:(\d+)s)?$`)

// ParseDuration parses player-facing duration strings like "1d", "2h30m" or
// "1d2h15m30s" into a time.Duration.
func ParseDuration(input string) (time.Duration, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration")
	}

	match := durationPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, fmt.Errorf("invalid duration format %q (use formats like 1d, 2h30m, 45m)", input)
	}

	days, _ := strconv.ParseInt(match[1], 10, 64)
	hours, _ := strconv.ParseInt(match[2], 10, 64)
	minutes, _ := strconv.ParseInt(match[3], 10, 64)
	seconds, _ := strconv.ParseInt(match[4], 10, 64)

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if d == 0 {
		return 0, fmt.Errorf("invalid duration format %q (use formats like 1d, 2h30m, 45m)", input)
	}
	return d, nil
}

// FormatDuration renders a duration back into the "1d 2h 30m" player format.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	days := int64(d.Hours()) / 24
	hours := int64(d.Hours()) % 24
	minutes := int64(d.Minutes()) % 60
	seconds := int64(d.Seconds()) % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}
	if seconds > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", seconds)
	}
	return strings.TrimSpace(b.String())
}
