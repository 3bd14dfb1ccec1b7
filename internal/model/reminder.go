package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTitleRequired   = errors.New("model: title is required")
	ErrInvalidPriority = errors.New("model: invalid priority")
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank orders priorities for sorting. Unknown values rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ParsePriority maps an empty value to normal and rejects anything else
// outside high, normal and low.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PriorityNormal, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	return p, nil
}

// SourceAssistant marks reminders created through the shared-secret surface.
const SourceAssistant = "assistant"

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// UnmarshalJSON also accepts numeric ids, which older documents stored.
func (s *Subtask) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Title     string          `json:"title"`
		Completed bool            `json:"completed"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Title = raw.Title
	s.Completed = raw.Completed
	s.ID = ""
	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
	case id[0] == '"':
		return json.Unmarshal(id, &s.ID)
	default:
		s.ID = string(id)
	}
	return nil
}

type Reminder struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes"`
	FolderID    string     `json:"folderId"`
	Completed   bool       `json:"completed"`
	DueDate     *Timestamp `json:"dueDate"`
	Priority    Priority   `json:"priority"`
	Recurring   Recurrence `json:"recurring"`
	Subtasks    []Subtask  `json:"subtasks"`
	CreatedAt   Timestamp  `json:"createdAt"`
	CompletedAt *Timestamp `json:"completedAt"`
	Source      string     `json:"source,omitempty"`
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: reminder id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	if !r.Recurring.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrence, r.Recurring)
	}
	if r.CreatedAt.IsZero() {
		return errors.New("model: reminder createdAt is required")
	}
	if r.Completed && r.CompletedAt == nil {
		return errors.New("model: completedAt is required when reminder is completed")
	}
	if !r.Completed && r.CompletedAt != nil {
		return errors.New("model: completedAt must be null when reminder is not completed")
	}
	return nil
}

// SetCompleted flips the completed flag, stamping completedAt only on a
// false to true transition and clearing it on true to false.
func (r *Reminder) SetCompleted(done bool, now time.Time) {
	if done == r.Completed {
		return
	}
	r.Completed = done
	if done {
		r.CompletedAt = At(now).Ptr()
		return
	}
	r.CompletedAt = nil
}

// TagText is the text scanned for hashtags.
func (r Reminder) TagText() string {
	return r.Title + " " + r.Notes
}

// DueBetween reports whether the due date falls in [start, end).
func (r Reminder) DueBetween(start, end time.Time) bool {
	if r.DueDate == nil {
		return false
	}
	due := r.DueDate.Time
	return !due.Before(start) && due.Before(end)
}

// Overdue reports whether an incomplete reminder was due before start.
func (r Reminder) Overdue(start time.Time) bool {
	return !r.Completed && r.DueDate != nil && r.DueDate.Before(start)
}

// AllSubtasksDone is false for reminders without subtasks.
func (r Reminder) AllSubtasksDone() bool {
	if len(r.Subtasks) == 0 {
		return false
	}
	for _, st := range r.Subtasks {
		if !st.Completed {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that shares no memory with r.
func (r Reminder) Clone() Reminder {
	out := r
	if r.DueDate != nil {
		out.DueDate = r.DueDate.Ptr()
	}
	if r.CompletedAt != nil {
		out.CompletedAt = r.CompletedAt.Ptr()
	}
	out.Subtasks = make([]Subtask, len(r.Subtasks))
	copy(out.Subtasks, r.Subtasks)
	return out
}
