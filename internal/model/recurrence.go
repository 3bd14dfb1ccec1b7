package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRecurrence = errors.New("model: invalid recurrence")

// Recurrence is the repeat rule of a reminder. The zero value means the
// reminder does not repeat and serializes as JSON null.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

const Day = 24 * time.Hour

func (r Recurrence) IsValid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Interval is the fixed width of one cycle. A month is always 30 days.
func (r Recurrence) Interval() time.Duration {
	switch r {
	case RecurrenceDaily:
		return Day
	case RecurrenceWeekly:
		return 7 * Day
	case RecurrenceMonthly:
		return 30 * Day
	default:
		return 0
	}
}

// ResetDue reports whether a reminder completed at completedAt should be
// reopened at now.
func (r Recurrence) ResetDue(completedAt, now time.Time) bool {
	interval := r.Interval()
	if interval <= 0 || completedAt.IsZero() {
		return false
	}
	return now.Sub(completedAt) >= interval
}

func ParseRecurrence(raw string) (Recurrence, error) {
	r := Recurrence(raw)
	if !r.IsValid() {
		return RecurrenceNone, fmt.Errorf("%w: %q", ErrInvalidRecurrence, raw)
	}
	return r, nil
}

func (r Recurrence) MarshalJSON() ([]byte, error) {
	if r == RecurrenceNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *Recurrence) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = RecurrenceNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Recurrence(raw)
	return nil
}
