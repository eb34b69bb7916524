package timex

import "time"

// Precision is the resolution of stored timestamps. PostgreSQL keeps
// microseconds, so every store truncates to it to round-trip exactly.
const Precision = time.Microsecond

// Stamp normalises t for storage: UTC, truncated to Precision.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// FormatTimestamp renders t in UTC as RFC 3339 with nanoseconds. An empty
// string is returned for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp is the inverse of FormatTimestamp. An empty string yields
// the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatOptional is FormatTimestamp for nullable columns.
func FormatOptional(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := FormatTimestamp(*t)
	return &s
}

// ParseOptional is ParseTimestamp for nullable columns.
func ParseOptional(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
