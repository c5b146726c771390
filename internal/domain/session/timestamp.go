package session

import (
	"strings"
	"time"
)

// acceptedLayouts covers RFC 3339 with or without fraction, ISO 8601 without
// a zone, and the space-separated form older clients sent. Zone-less values
// are read as UTC.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp returns the stored form of a client-supplied reading
// time: RFC 3339 UTC with nanoseconds. Empty input means now. Input that
// matches no accepted layout is kept verbatim.
func NormalizeTimestamp(s string, now time.Time) string {
	if strings.TrimSpace(s) == "" {
		return now.UTC().Format(time.RFC3339Nano)
	}
	if t, ok := parseTimestamp(s); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// DateOf extracts YYYY-MM-DD from a stored reading time, whichever format
// wrote it. The date is taken in the offset the value was written with.
func DateOf(s string) string {
	if t, ok := parseTimestamp(s); ok {
		return t.Format("2006-01-02")
	}
	if i := strings.IndexAny(s, "T "); i >= 0 {
		return s[:i]
	}
	return s
}
