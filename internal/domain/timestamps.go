package domain

import "time"

// Timestamp formats used across the local store and the wire.
//
// Lifecycle timestamps (createdAt/updatedAt) are ISO-8601 instants in UTC and
// drive last-write-wins comparisons. NextReview values are local: a date-only
// string for day-granularity scheduling or a local second-precision timestamp
// for minute-granularity learning steps.
const (
	dateLayout  = "2006-01-02"
	localLayout = "2006-01-02T15:04:05"
)

// NowISO returns the current instant as an ISO-8601 UTC string with
// millisecond precision.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// DateString formats t as a date-only string in t's location.
func DateString(t time.Time) string {
	return t.Format(dateLayout)
}

// LocalTimestamp formats t as a local second-precision timestamp. It sorts
// after the same day's date-only string, so a card scheduled by date counts
// as due at any time that day.
func LocalTimestamp(t time.Time) string {
	return t.Format(localLayout)
}

// ParseInstant parses a lifecycle timestamp into a time. It accepts RFC 3339
// with or without fractional seconds, a bare local timestamp, and a date-only
// string. The zero time and false are returned for anything else, including
// the empty string; callers treat that as "older than everything".
func ParseInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range []string{localLayout, dateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EpochMillis converts a lifecycle timestamp to milliseconds since the epoch,
// the unit last-write-wins comparisons are defined in. Unparseable input maps
// to 0.
func EpochMillis(s string) int64 {
	t, ok := ParseInstant(s)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}
