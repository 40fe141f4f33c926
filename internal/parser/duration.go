package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Seconds per duration unit.
const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400
)

// epochMillisThreshold separates Unix seconds from Unix milliseconds.
const epochMillisThreshold = 1e12

// timestampLayouts are the textual timestamp formats accepted after epoch values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 MST",
}

// ParseTimestamp parses Unix epoch seconds or milliseconds, or one of the
// textual layouts. Results are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if n, ok := parseNumber(s); ok {
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= epochMillisThreshold {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		sec := int64(n)
		nsec := int64((n - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// durationPart matches one component of "2h 30m 10s" or "1d2h".
var durationPart = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(d|h|m|s)`)

// durationText validates that a string is made only of duration components.
var durationText = regexp.MustCompile(`^(\s*\d+(?:\.\d+)?\s*[dhms]\s*)+$`)

// ParseDuration returns the duration in seconds.
//
// Accepted forms:
//   - bare numbers, scaled by unit ("s", "min", "h", "d"; seconds if empty)
//   - "HH:MM:SS" and "MM:SS"
//   - "2h 30m", "1d 2h 3m 4s"
func ParseDuration(s, unit string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	if n, ok := parseNumber(s); ok {
		return n * unitSeconds(unit), true
	}

	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	if durationText.MatchString(s) {
		var total float64
		for _, m := range durationPart.FindAllStringSubmatch(s, -1) {
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, false
			}
			total += n * unitSeconds(m[2])
		}
		return total, true
	}

	return 0, false
}

// parseClock handles "HH:MM:SS" and "MM:SS".
func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*secondsPerMinute + n
	}
	return total, true
}

// unitSeconds returns the number of seconds in one unit.
func unitSeconds(unit string) float64 {
	switch strings.ToLower(unit) {
	case "m", "min", "mins", "minute", "minutes":
		return secondsPerMinute
	case "h", "hour", "hours":
		return secondsPerHour
	case "d", "day", "days":
		return secondsPerDay
	default:
		return 1
	}
}

// durationValue expresses secs in the metric's own unit and records the
// seconds and a human-readable form as attributes.
func durationValue(secs float64, unit string) Value {
	return Value{
		Kind:   KindNumber,
		Number: round(secs/unitSeconds(unit), 2),
		Attributes: map[string]any{
			"seconds":   secs,
			"formatted": FormatDuration(secs),
		},
	}
}

// FormatDuration renders seconds as "1d 2h 3m". Durations under a minute
// render as seconds ("45s").
func FormatDuration(secs float64) string {
	total := int64(secs)
	if total < 0 {
		total = 0
	}
	if total < secondsPerMinute {
		return fmt.Sprintf("%ds", total)
	}

	days := total / secondsPerDay
	hours := (total % secondsPerDay) / secondsPerHour
	minutes := (total % secondsPerHour) / secondsPerMinute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
