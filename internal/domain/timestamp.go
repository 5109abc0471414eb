package domain

import (
	"fmt"
	"time"
)

// TimestampFormat is the ISO-8601 form used in metadata files and the index: UTC, milliseconds.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp accepts any RFC 3339 timestamp and normalizes it to UTC milliseconds.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// timestampValue converts a decoded YAML scalar into a timestamp.
func timestampValue(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Truncate(time.Millisecond), nil
	case string:
		return ParseTimestamp(v)
	default:
		return time.Time{}, fmt.Errorf("invalid timestamp value %v", value)
	}
}
