package repository

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
)

// Filter selects reminders. Every set field must match.
type Filter struct {
	FolderID  string
	Completed *bool
	DueToday  bool
	// Scheduled keeps only reminders that have a due date.
	Scheduled bool
	Tag       string
	Search    string
}

// Match applies the filters in their documented order: folder, completed,
// due today, tag, then free-text search.
func (f Filter) Match(rem model.Reminder, dayStart, dayEnd time.Time) bool {
	if f.FolderID != "" && rem.FolderID != f.FolderID {
		return false
	}
	if f.Completed != nil && rem.Completed != *f.Completed {
		return false
	}
	if f.DueToday && !rem.DueBetween(dayStart, dayEnd) {
		return false
	}
	if f.Scheduled && rem.DueDate == nil {
		return false
	}
	if tag := strings.ToLower(strings.TrimSpace(f.Tag)); tag != "" {
		if !strings.Contains(strings.ToLower(rem.TagText()), tag) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(rem.Title), q) && !strings.Contains(strings.ToLower(rem.Notes), q) {
			return false
		}
	}
	return true
}

// ListReminders returns matching reminders sorted by Compare.
func (r *Repository) ListReminders(f Filter) []model.Reminder {
	r.mu.Lock()
	start, end := model.DayBounds(r.now())
	out := make([]model.Reminder, 0, len(r.order))
	for _, id := range r.order {
		rem := r.reminders[id]
		if f.Match(*rem, start, end) {
			out = append(out, rem.Clone())
		}
	}
	r.mu.Unlock()
	SortReminders(out)
	return out
}

// Today returns incomplete reminders due today together with overdue ones.
func (r *Repository) Today() []model.Reminder {
	r.mu.Lock()
	start, end := model.DayBounds(r.now())
	out := make([]model.Reminder, 0)
	for _, id := range r.order {
		rem := r.reminders[id]
		if rem.Completed {
			continue
		}
		if rem.DueBetween(start, end) || rem.Overdue(start) {
			out = append(out, rem.Clone())
		}
	}
	r.mu.Unlock()
	SortReminders(out)
	return out
}

// Compare orders reminders: incomplete first, then priority rank, then
// reminders with a due date before those without, then by due date
// ascending. Reminders without due dates are newest first. The key is
// lexicographic so the order is a strict weak ordering.
func Compare(a, b model.Reminder) int {
	if a.Completed != b.Completed {
		if !a.Completed {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Priority.Rank(), b.Priority.Rank()); c != 0 {
		return c
	}
	aDue, bDue := a.DueDate != nil, b.DueDate != nil
	switch {
	case aDue && !bDue:
		return -1
	case !aDue && bDue:
		return 1
	case aDue && bDue:
		return cmp.Compare(a.DueDate.Millis(), b.DueDate.Millis())
	default:
		return cmp.Compare(b.CreatedAt.Millis(), a.CreatedAt.Millis())
	}
}

// SortReminders sorts in place, keeping the incoming order for ties.
func SortReminders(items []model.Reminder) {
	slices.SortStableFunc(items, Compare)
}

// ─── Tags ───────────────────────────────────────────────────────────────────

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func (r *Repository) rebuildTagsLocked() {
	tags := make(map[string]int, len(r.tags))
	for _, id := range r.order {
		for _, tag := range model.ExtractTags(r.reminders[id].TagText()) {
			tags[tag]++
		}
	}
	r.tags = tags
}

// RebuildTags recomputes the tag index from reminder text. It does not
// count as a mutation.
func (r *Repository) RebuildTags() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildTagsLocked()
	return len(r.tags)
}

// Tags returns tag usage, most used first and then alphabetical.
func (r *Repository) Tags() []TagCount {
	r.mu.Lock()
	out := make([]TagCount, 0, len(r.tags))
	for tag, n := range r.tags {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}

// ─── Stats ──────────────────────────────────────────────────────────────────

type Stats struct {
	Total        int            `json:"total"`
	Completed    int            `json:"completed"`
	Pending      int            `json:"pending"`
	DueToday     int            `json:"dueToday"`
	Overdue      int            `json:"overdue"`
	HighPriority int            `json:"highPriority"`
	Recurring    int            `json:"recurring"`
	Tags         int            `json:"tags"`
	Folders      int            `json:"folders"`
	ByFolder     map[string]int `json:"byFolder"`
}

// Stats summarizes the collections. ByFolder counts incomplete reminders.
func (r *Repository) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, end := model.DayBounds(r.now())
	s := Stats{
		Total:    len(r.reminders),
		Tags:     len(r.tags),
		Folders:  len(r.folders),
		ByFolder: make(map[string]int),
	}
	for _, rem := range r.reminders {
		if rem.Recurring != model.RecurrenceNone {
			s.Recurring++
		}
		if rem.Completed {
			s.Completed++
			continue
		}
		s.Pending++
		s.ByFolder[rem.FolderID]++
		if rem.DueBetween(start, end) {
			s.DueToday++
		}
		if rem.Overdue(start) {
			s.Overdue++
		}
		if rem.Priority == model.PriorityHigh {
			s.HighPriority++
		}
	}
	return s
}
