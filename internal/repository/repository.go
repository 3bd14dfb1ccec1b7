// Package repository holds the authoritative in-memory folders, reminders and
// tag index, and the query logic served by the API.
package repository

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
)

var (
	ErrNotFound       = errors.New("repository: not found")
	ErrValidation     = errors.New("repository: validation failed")
	ErrInboxProtected = fmt.Errorf("%w: system folders cannot be deleted", ErrValidation)
)

// Snapshot is a point-in-time copy of every collection, in insertion order.
type Snapshot struct {
	Folders   []model.Folder
	Reminders []model.Reminder
	Tags      map[string]int
}

type Option func(*Repository)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithOnChange registers a callback invoked after every committed mutation,
// outside the repository lock.
func WithOnChange(fn func(reason string)) Option {
	return func(r *Repository) { r.onChange = fn }
}

type Repository struct {
	mu          sync.Mutex
	folders     map[string]*model.Folder
	folderOrder []string
	reminders   map[string]*model.Reminder
	order       []string
	tags        map[string]int
	generation  uint64

	now      func() time.Time
	onChange func(reason string)
}

func New(opts ...Option) *Repository {
	r := &Repository{
		folders:   make(map[string]*model.Folder),
		reminders: make(map[string]*model.Reminder),
		tags:      make(map[string]int),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ensureSystemFoldersLocked()
	return r
}

// SetOnChange replaces the mutation callback.
func (r *Repository) SetOnChange(fn func(reason string)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Generation increases on every committed mutation.
func (r *Repository) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// mutate runs fn under the lock. When fn reports a change the generation is
// bumped, tags are rebuilt and the change callback fires after unlocking.
func (r *Repository) mutate(reason string, fn func() (bool, error)) error {
	r.mu.Lock()
	changed, err := fn()
	if err == nil && changed {
		r.generation++
		r.rebuildTagsLocked()
	}
	notify := r.onChange
	r.mu.Unlock()
	if err == nil && changed && notify != nil {
		notify(reason)
	}
	return err
}

// Replace swaps every collection for the snapshot contents and re-creates any
// missing system folder. The tag index is recomputed rather than trusted.
func (r *Repository) Replace(s Snapshot) {
	_ = r.mutate("replace", func() (bool, error) {
		r.folders = make(map[string]*model.Folder, len(s.Folders))
		r.folderOrder = r.folderOrder[:0]
		for _, f := range s.Folders {
			if _, dup := r.folders[f.ID]; dup || f.ID == "" {
				continue
			}
			f := f
			r.folders[f.ID] = &f
			r.folderOrder = append(r.folderOrder, f.ID)
		}
		r.reminders = make(map[string]*model.Reminder, len(s.Reminders))
		r.order = r.order[:0]
		for _, rem := range s.Reminders {
			if _, dup := r.reminders[rem.ID]; dup || rem.ID == "" {
				continue
			}
			c := rem.Clone()
			normalizeLoaded(&c, r.now())
			r.reminders[c.ID] = &c
			r.order = append(r.order, c.ID)
		}
		r.ensureSystemFoldersLocked()
		return true, nil
	})
}

// normalizeLoaded repairs documents written by older versions or other
// tools so every loaded reminder passes Validate: createdAt is set,
// completed and completedAt agree, and an unknown recurrence becomes none.
func normalizeLoaded(rem *model.Reminder, now time.Time) {
	if rem.FolderID == "" {
		rem.FolderID = model.InboxID
	}
	if rem.Priority == "" {
		rem.Priority = model.PriorityNormal
	}
	if !rem.Recurring.IsValid() {
		rem.Recurring = model.RecurrenceNone
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = model.At(now)
	}
	rem.Subtasks = normalizeSubtasks(rem.Subtasks)
	if rem.Completed && (rem.CompletedAt == nil || rem.CompletedAt.IsZero()) {
		rem.CompletedAt = rem.CreatedAt.Ptr()
	}
	if !rem.Completed {
		rem.CompletedAt = nil
	}
}

func (r *Repository) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{
		Folders:   make([]model.Folder, 0, len(r.folderOrder)),
		Reminders: make([]model.Reminder, 0, len(r.order)),
		Tags:      make(map[string]int, len(r.tags)),
	}
	for _, id := range r.folderOrder {
		out.Folders = append(out.Folders, *r.folders[id])
	}
	for _, id := range r.order {
		out.Reminders = append(out.Reminders, r.reminders[id].Clone())
	}
	for k, v := range r.tags {
		out.Tags[k] = v
	}
	return out
}

// EnsureSystemFolders creates the inbox and smart folders if missing and
// reports whether anything was added.
func (r *Repository) EnsureSystemFolders() bool {
	var added bool
	_ = r.mutate("system-folders", func() (bool, error) {
		added = r.ensureSystemFoldersLocked()
		return added, nil
	})
	return added
}

func (r *Repository) ensureSystemFoldersLocked() bool {
	added := false
	for _, f := range model.SystemFolders(r.now()) {
		if _, ok := r.folders[f.ID]; ok {
			continue
		}
		f := f
		r.folders[f.ID] = &f
		r.folderOrder = append(r.folderOrder, f.ID)
		added = true
	}
	return added
}

// Counts returns the number of folders and reminders.
func (r *Repository) Counts() (folders, reminders int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.folders), len(r.reminders)
}

// ─── Folders ────────────────────────────────────────────────────────────────

type FolderInput struct {
	Name  string
	Color string
	Icon  string
}

type FolderPatch struct {
	Name  *string
	Color *string
	Icon  *string
}

func (r *Repository) ListFolders() []model.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Folder, 0, len(r.folderOrder))
	for _, id := range r.folderOrder {
		out = append(out, *r.folders[id])
	}
	return out
}

func (r *Repository) GetFolder(id string) (model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return model.Folder{}, ErrNotFound
	}
	return *f, nil
}

func (r *Repository) CreateFolder(in FolderInput) (model.Folder, error) {
	var out model.Folder
	err := r.mutate("folder-create", func() (bool, error) {
		f := model.Folder{
			ID:        r.newFolderIDLocked(),
			Name:      strings.TrimSpace(in.Name),
			Color:     defaultString(in.Color, "#007AFF"),
			Icon:      defaultString(in.Icon, "folder"),
			CreatedAt: model.At(r.now()),
		}
		if err := f.Validate(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		r.folders[f.ID] = &f
		r.folderOrder = append(r.folderOrder, f.ID)
		out = f
		return true, nil
	})
	return out, err
}

func (r *Repository) UpdateFolder(id string, p FolderPatch) (model.Folder, error) {
	var out model.Folder
	err := r.mutate("folder-update", func() (bool, error) {
		f, ok := r.folders[id]
		if !ok {
			return false, ErrNotFound
		}
		next := *f
		if p.Name != nil {
			next.Name = strings.TrimSpace(*p.Name)
		}
		if p.Color != nil {
			next.Color = *p.Color
		}
		if p.Icon != nil {
			next.Icon = *p.Icon
		}
		if err := next.Validate(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		*f = next
		out = next
		return true, nil
	})
	return out, err
}

// DeleteFolder moves the folder's reminders to the inbox and removes it. It
// returns how many reminders were reassigned.
func (r *Repository) DeleteFolder(id string) (int, error) {
	moved := 0
	err := r.mutate("folder-delete", func() (bool, error) {
		if model.IsSystemFolder(id) {
			return false, ErrInboxProtected
		}
		if _, ok := r.folders[id]; !ok {
			return false, ErrNotFound
		}
		for _, rem := range r.reminders {
			if rem.FolderID == id {
				rem.FolderID = model.InboxID
				moved++
			}
		}
		delete(r.folders, id)
		r.folderOrder = removeID(r.folderOrder, id)
		return true, nil
	})
	return moved, err
}

func (r *Repository) newFolderIDLocked() string {
	for {
		id := model.NewShortID()
		if _, taken := r.folders[id]; !taken && !model.IsSystemFolder(id) {
			return id
		}
	}
}

// ─── Reminders ──────────────────────────────────────────────────────────────

type ReminderInput struct {
	Title     string
	Notes     string
	FolderID  string
	DueDate   *model.Timestamp
	Priority  model.Priority
	Recurring model.Recurrence
	Subtasks  []string
	Source    string
}

// ReminderPatch carries optional changes. A zero DueDate clears the due
// date and RecurrenceNone clears the recurrence.
type ReminderPatch struct {
	Title     *string
	Notes     *string
	FolderID  *string
	Completed *bool
	DueDate   *model.Timestamp
	Priority  *model.Priority
	Recurring *model.Recurrence
	Subtasks  *[]model.Subtask
}

func (r *Repository) GetReminder(id string) (model.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return model.Reminder{}, ErrNotFound
	}
	return rem.Clone(), nil
}

func (r *Repository) CreateReminder(in ReminderInput) (model.Reminder, error) {
	var out model.Reminder
	err := r.mutate("reminder-create", func() (bool, error) {
		priority, err := model.ParsePriority(string(in.Priority))
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if !in.Recurring.IsValid() {
			return false, fmt.Errorf("%w: %w: %q", ErrValidation, model.ErrInvalidRecurrence, in.Recurring)
		}
		rem := model.Reminder{
			ID:        r.newReminderIDLocked(),
			Title:     strings.TrimSpace(in.Title),
			Notes:     in.Notes,
			FolderID:  defaultString(strings.TrimSpace(in.FolderID), model.InboxID),
			Priority:  priority,
			Recurring: in.Recurring,
			Subtasks:  []model.Subtask{},
			CreatedAt: model.At(r.now()),
			Source:    in.Source,
		}
		if in.DueDate != nil && !in.DueDate.IsZero() {
			rem.DueDate = in.DueDate.Ptr()
		}
		for _, title := range in.Subtasks {
			title = strings.TrimSpace(title)
			if title == "" {
				continue
			}
			rem.Subtasks = append(rem.Subtasks, model.Subtask{ID: model.NewID(), Title: title})
		}
		if err := rem.Validate(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		r.reminders[rem.ID] = &rem
		r.order = append(r.order, rem.ID)
		out = rem.Clone()
		return true, nil
	})
	return out, err
}

// UpdateReminder applies the patch in place; the reminder keeps its id and
// position.
func (r *Repository) UpdateReminder(id string, p ReminderPatch) (model.Reminder, error) {
	var out model.Reminder
	err := r.mutate("reminder-update", func() (bool, error) {
		rem, ok := r.reminders[id]
		if !ok {
			return false, ErrNotFound
		}
		next := rem.Clone()
		if p.Title != nil {
			next.Title = strings.TrimSpace(*p.Title)
		}
		if p.Notes != nil {
			next.Notes = *p.Notes
		}
		if p.FolderID != nil {
			next.FolderID = defaultString(strings.TrimSpace(*p.FolderID), model.InboxID)
		}
		if p.Priority != nil {
			priority, err := model.ParsePriority(string(*p.Priority))
			if err != nil {
				return false, fmt.Errorf("%w: %w", ErrValidation, err)
			}
			next.Priority = priority
		}
		if p.Recurring != nil {
			if !p.Recurring.IsValid() {
				return false, fmt.Errorf("%w: %w: %q", ErrValidation, model.ErrInvalidRecurrence, *p.Recurring)
			}
			next.Recurring = *p.Recurring
		}
		if p.DueDate != nil {
			if p.DueDate.IsZero() {
				next.DueDate = nil
			} else {
				next.DueDate = p.DueDate.Ptr()
			}
		}
		if p.Subtasks != nil {
			next.Subtasks = normalizeSubtasks(*p.Subtasks)
		}
		if p.Completed != nil {
			next.SetCompleted(*p.Completed, r.now())
		}
		if err := next.Validate(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		*rem = next
		out = next.Clone()
		return true, nil
	})
	return out, err
}

func (r *Repository) DeleteReminder(id string) error {
	return r.mutate("reminder-delete", func() (bool, error) {
		if _, ok := r.reminders[id]; !ok {
			return false, ErrNotFound
		}
		r.deleteReminderLocked(id)
		return true, nil
	})
}

func (r *Repository) deleteReminderLocked(id string) {
	delete(r.reminders, id)
	r.order = removeID(r.order, id)
}

func (r *Repository) newReminderIDLocked() string {
	for {
		id := model.NewID()
		if _, taken := r.reminders[id]; !taken {
			return id
		}
	}
}

// normalizeSubtasks keeps supplied ids and assigns fresh ones where missing
// or duplicated. Ids are never derived from position.
func normalizeSubtasks(in []model.Subtask) []model.Subtask {
	out := make([]model.Subtask, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, st := range in {
		st.Title = strings.TrimSpace(st.Title)
		if st.Title == "" {
			continue
		}
		if st.ID == "" || seen[st.ID] {
			st.ID = model.NewID()
		}
		seen[st.ID] = true
		out = append(out, st)
	}
	return out
}

func removeID(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
