package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
)

// ─── Subtasks ───────────────────────────────────────────────────────────────

type SubtaskPatch struct {
	Title     *string
	Completed *bool
}

func (r *Repository) AddSubtask(reminderID, title string) (model.Reminder, model.Subtask, error) {
	var (
		out model.Reminder
		st  model.Subtask
	)
	err := r.mutate("subtask-add", func() (bool, error) {
		rem, ok := r.reminders[reminderID]
		if !ok {
			return false, ErrNotFound
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return false, fmt.Errorf("%w: %w", ErrValidation, model.ErrTitleRequired)
		}
		st = model.Subtask{ID: model.NewID(), Title: title}
		rem.Subtasks = append(rem.Subtasks, st)
		out = rem.Clone()
		return true, nil
	})
	return out, st, err
}

// UpdateSubtask edits one subtask. Completing the last open subtask also
// completes the parent reminder; reopening a subtask leaves the parent alone.
func (r *Repository) UpdateSubtask(reminderID, subtaskID string, p SubtaskPatch) (model.Reminder, error) {
	var out model.Reminder
	err := r.mutate("subtask-update", func() (bool, error) {
		rem, ok := r.reminders[reminderID]
		if !ok {
			return false, ErrNotFound
		}
		idx := subtaskIndex(rem.Subtasks, subtaskID)
		if idx < 0 {
			return false, ErrNotFound
		}
		st := rem.Subtasks[idx]
		if p.Title != nil {
			st.Title = strings.TrimSpace(*p.Title)
			if st.Title == "" {
				return false, fmt.Errorf("%w: %w", ErrValidation, model.ErrTitleRequired)
			}
		}
		if p.Completed != nil {
			st.Completed = *p.Completed
		}
		rem.Subtasks[idx] = st
		if p.Completed != nil && *p.Completed && rem.AllSubtasksDone() {
			rem.SetCompleted(true, r.now())
		}
		out = rem.Clone()
		return true, nil
	})
	return out, err
}

func (r *Repository) DeleteSubtask(reminderID, subtaskID string) (model.Reminder, error) {
	var out model.Reminder
	err := r.mutate("subtask-delete", func() (bool, error) {
		rem, ok := r.reminders[reminderID]
		if !ok {
			return false, ErrNotFound
		}
		idx := subtaskIndex(rem.Subtasks, subtaskID)
		if idx < 0 {
			return false, ErrNotFound
		}
		rem.Subtasks = append(rem.Subtasks[:idx:idx], rem.Subtasks[idx+1:]...)
		out = rem.Clone()
		return true, nil
	})
	return out, err
}

func subtaskIndex(items []model.Subtask, id string) int {
	for i, st := range items {
		if st.ID == id {
			return i
		}
	}
	return -1
}

// ─── Bulk ───────────────────────────────────────────────────────────────────

type BulkAction string

const (
	BulkComplete   BulkAction = "complete"
	BulkUncomplete BulkAction = "uncomplete"
	BulkDelete     BulkAction = "delete"
	BulkMove       BulkAction = "move"
)

func (a BulkAction) IsValid() bool {
	switch a {
	case BulkComplete, BulkUncomplete, BulkDelete, BulkMove:
		return true
	default:
		return false
	}
}

type BulkRequest struct {
	Action   BulkAction
	IDs      []string
	FolderID string
}

// Bulk applies one action to many reminders. Unknown ids are skipped, and a
// move without a target folder changes nothing. It returns how many
// reminders the action was applied to.
func (r *Repository) Bulk(req BulkRequest) (int, error) {
	if !req.Action.IsValid() {
		return 0, fmt.Errorf("%w: unknown bulk action %q", ErrValidation, req.Action)
	}
	updated := 0
	err := r.mutate("bulk-"+string(req.Action), func() (bool, error) {
		now := r.now()
		target := strings.TrimSpace(req.FolderID)
		for _, id := range req.IDs {
			rem, ok := r.reminders[id]
			if !ok {
				continue
			}
			switch req.Action {
			case BulkComplete:
				rem.SetCompleted(true, now)
			case BulkUncomplete:
				rem.SetCompleted(false, now)
			case BulkDelete:
				r.deleteReminderLocked(id)
			case BulkMove:
				if target == "" {
					continue
				}
				rem.FolderID = target
			}
			updated++
		}
		return updated > 0, nil
	})
	return updated, err
}

// ─── Recurrence ─────────────────────────────────────────────────────────────

// SweepRecurring reopens completed recurring reminders whose interval has
// elapsed since completion. The due date moves forward by exactly one
// interval so its time of day is kept. Only a non-zero sweep is reported as
// a change.
func (r *Repository) SweepRecurring(now time.Time) int {
	reset := 0
	_ = r.mutate("recurrence", func() (bool, error) {
		for _, id := range r.order {
			rem := r.reminders[id]
			if rem.Recurring == model.RecurrenceNone || !rem.Completed || rem.CompletedAt == nil {
				continue
			}
			if !rem.Recurring.ResetDue(rem.CompletedAt.Time, now) {
				continue
			}
			rem.Completed = false
			rem.CompletedAt = nil
			rem.CreatedAt = model.At(now)
			if rem.DueDate != nil {
				rem.DueDate = model.At(rem.DueDate.Add(rem.Recurring.Interval())).Ptr()
			}
			reset++
		}
		return reset > 0, nil
	})
	return reset
}
