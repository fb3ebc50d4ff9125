package utils

import (
	"fmt"
	"time"
)

// Timestamps on the wire are UTC RFC3339 with fractional seconds and a
// literal Z suffix, e.g. 2024-05-01T12:30:00.123456Z.
const wireTimeFormat = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(wireTimeFormat)
}

// ParseTime accepts stamps with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(wireTimeFormat, s, time.UTC)
	if err == nil {
		return t, nil
	}
	t, err = time.ParseInLocation("2006-01-02T15:04:05Z", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func Now() time.Time {
	return time.Now().UTC()
}
