package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an instant serialized as epoch milliseconds.
type Timestamp struct {
	time.Time
}

// At truncates t to millisecond precision so values survive a JSON round trip.
func At(t time.Time) Timestamp {
	return Timestamp{Time: time.UnixMilli(t.UnixMilli())}
}

func FromMillis(ms int64) Timestamp {
	return Timestamp{Time: time.UnixMilli(ms)}
}

// Ptr returns a pointer to a copy of t.
func (t Timestamp) Ptr() *Timestamp {
	return &t
}

func (t Timestamp) Millis() int64 {
	return t.UnixMilli()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// UnmarshalJSON accepts epoch milliseconds as a number or numeric string, or
// an RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '"' {
		ms, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("model: invalid timestamp %s: %w", b, err)
		}
		if math.IsNaN(ms) || ms < math.MinInt64 || ms >= math.MaxInt64 {
			return fmt.Errorf("model: timestamp %s out of range", b)
		}
		*t = FromMillis(int64(ms))
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses epoch milliseconds, RFC 3339, or a bare YYYY-MM-DD
// date in the local zone.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return FromMillis(ms), nil
	}
	if tm, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return At(tm), nil
	}
	if tm, err := time.ParseInLocation("2006-01-02T15:04", raw, time.Local); err == nil {
		return At(tm), nil
	}
	if tm, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return At(tm), nil
	}
	return Timestamp{}, fmt.Errorf("model: invalid timestamp %q", raw)
}

// DayBounds returns local midnight of the day containing now and the
// following midnight.
func DayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}
