package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince converts a time expression into the instant it names, relative
// to now. Accepted forms: "30m", "2h", "3d", "1w", "today", "yesterday",
// "2006-01-02" and RFC 3339 timestamps.
func ParseSince(expression string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if ts, ok := parseAbsoluteTime(trimmed, now); ok {
		return ts, nil
	}
	if ts, ok := parseRelativeTime(trimmed, now); ok {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid time expression: %s", expression)
}

func parseRelativeTime(value string, now time.Time) (time.Time, bool) {
	if len(value) < 2 {
		return time.Time{}, false
	}
	var unit time.Duration
	switch strings.ToLower(value[len(value)-1:]) {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	default:
		return time.Time{}, false
	}
	amount, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || amount <= 0 {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(amount) * unit), true
}

func parseAbsoluteTime(value string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch strings.ToLower(value) {
	case "today":
		return today, true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}
	if ts, err := time.ParseInLocation("2006-01-02", value, now.Location()); err == nil {
		return ts, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
