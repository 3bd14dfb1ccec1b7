package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

type fakeBackend struct {
	mu        sync.Mutex
	folders   []model.Folder
	items     []client.Reminder
	created   []client.NewReminder
	completed []string
	moved     map[string]string
	deleted   []string
	lastList  client.ListOptions
	failNext  error
}

func newFakeBackend() *fakeBackend {
	folders := model.SystemFolders(time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local))
	folders = append(folders, model.Folder{ID: "f-work", Name: "Work"})
	return &fakeBackend{
		folders: folders,
		items: []client.Reminder{
			{Reminder: model.Reminder{ID: "aa11", Title: "first", FolderID: model.InboxID, Priority: model.PriorityNormal}},
			{Reminder: model.Reminder{ID: "bb22", Title: "second", FolderID: model.InboxID, Priority: model.PriorityHigh}, Overdue: true},
		},
		moved: map[string]string{},
	}
}

func (f *fakeBackend) Folders(context.Context) ([]model.Folder, error) { return f.folders, nil }

func (f *fakeBackend) ListReminders(_ context.Context, opts client.ListOptions) ([]client.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = opts
	return f.items, nil
}

func (f *fakeBackend) Today(context.Context) ([]client.Reminder, error) { return f.items, nil }

func (f *fakeBackend) CreateReminder(_ context.Context, in client.NewReminder) (model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return model.Reminder{}, err
	}
	f.created = append(f.created, in)
	return model.Reminder{ID: "new", Title: in.Title}, nil
}

func (f *fakeBackend) SetCompleted(_ context.Context, _ bool, ids ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, ids...)
	return len(ids), nil
}

func (f *fakeBackend) DeleteReminder(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Bulk(_ context.Context, action repository.BulkAction, ids []string, folderID string) (int, error) {
	if action == repository.BulkMove {
		for _, id := range ids {
			f.moved[id] = folderID
		}
	}
	return len(ids), nil
}

func (f *fakeBackend) CreateFolder(_ context.Context, name, _, _ string) (model.Folder, error) {
	folder := model.Folder{ID: "f-" + strings.ToLower(name), Name: name}
	f.folders = append(f.folders, folder)
	return folder, nil
}

func (f *fakeBackend) Stats(context.Context) (repository.Stats, error) {
	return repository.Stats{Total: len(f.items), Pending: len(f.items)}, nil
}

var testNow = time.Date(2026, 6, 10, 14, 0, 0, 0, time.Local)

func loaded(t *testing.T, backend *fakeBackend) Model {
	t.Helper()
	m := New(backend, WithClock(func() time.Time { return testNow }))
	next, _ := m.Update(m.loadFolders()())
	m = next.(Model)
	next, _ = m.Update(m.loadReminders()())
	return next.(Model)
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, r := range keys {
		var msg tea.KeyMsg
		switch r {
		case '\n':
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case '\t':
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
		}
		next, c := m.Update(msg)
		m = next.(Model)
		cmd = c
	}
	return m, cmd
}

// run executes a command and feeds its message back, ignoring batches.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestStartsOnTodayTab(t *testing.T) {
	m := loaded(t, newFakeBackend())
	if m.ActiveFolder() != model.TodayID {
		t.Fatalf("expected today tab, got %q", m.ActiveFolder())
	}
	if len(m.Items) != 2 {
		t.Fatalf("expected items loaded, got %d", len(m.Items))
	}
	if !strings.Contains(m.View(), "second") {
		t.Fatalf("expected items in view")
	}
}

func TestTabSwitchAndCursor(t *testing.T) {
	m := loaded(t, newFakeBackend())
	m, cmd := press(t, m, "\t")
	if m.ActiveFolder() != model.ScheduledID || cmd == nil {
		t.Fatalf("expected scheduled tab with reload, got %q", m.ActiveFolder())
	}
	m = run(t, m, cmd)
	m, _ = press(t, m, "jjj")
	if m.Cursor != 1 {
		t.Fatalf("expected cursor clamped to 1, got %d", m.Cursor)
	}
	m, _ = press(t, m, "k")
	if m.Cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", m.Cursor)
	}
}

func TestToggleCompletesSelected(t *testing.T) {
	backend := newFakeBackend()
	m := loaded(t, backend)
	m, _ = press(t, m, "j")
	m, cmd := press(t, m, "x")
	m = run(t, m, cmd)
	if len(backend.completed) != 1 || backend.completed[0] != "bb22" {
		t.Fatalf("expected bb22 completed, got %v", backend.completed)
	}
	if !strings.Contains(m.Status.Text, "completed") {
		t.Fatalf("unexpected status %q", m.Status.Text)
	}
}

func TestQuickAddUsesActiveUserFolder(t *testing.T) {
	backend := newFakeBackend()
	m := loaded(t, backend)
	m.selectFolder("f-work")
	m, _ = press(t, m, "a")
	if m.Mode != ModeAdd {
		t.Fatalf("expected add mode")
	}
	m, cmd := press(t, m, "buy ink\n")
	m = run(t, m, cmd)
	if len(backend.created) != 1 || backend.created[0].Title != "buy ink" || backend.created[0].FolderID != "f-work" {
		t.Fatalf("unexpected created %+v", backend.created)
	}
	if m.Mode != ModeBrowse {
		t.Fatalf("expected browse mode after add")
	}
}

func TestPaletteAddFromSmartFolderGoesToInbox(t *testing.T) {
	backend := newFakeBackend()
	m := loaded(t, backend)
	m, _ = press(t, m, "/")
	m, cmd := press(t, m, "add call bank !high due:tomorrow\n")
	run(t, m, cmd)
	if len(backend.created) != 1 {
		t.Fatalf("expected one reminder created")
	}
	got := backend.created[0]
	if got.FolderID != "" || got.Priority != model.PriorityHigh || got.DueDate == nil {
		t.Fatalf("unexpected reminder %+v", got)
	}
	want := time.Date(2026, 6, 11, 9, 0, 0, 0, time.Local)
	if !got.DueDate.Equal(want) {
		t.Fatalf("due = %s, want %s", got.DueDate.Time, want)
	}
}

func TestPaletteDoneAndMove(t *testing.T) {
	backend := newFakeBackend()
	m := loaded(t, backend)
	m, _ = press(t, m, "/")
	m, cmd := press(t, m, "done 1 bb\n")
	m = run(t, m, cmd)
	if len(backend.completed) != 2 {
		t.Fatalf("expected two completions, got %v", backend.completed)
	}

	m, _ = press(t, m, "/")
	m, cmd = press(t, m, "move aa work\n")
	run(t, m, cmd)
	if backend.moved["aa11"] != "f-work" {
		t.Fatalf("expected aa11 moved to f-work, got %v", backend.moved)
	}
}

func TestPaletteErrorsSetStatus(t *testing.T) {
	m := loaded(t, newFakeBackend())
	for _, in := range []string{"done 9\n", "move 1 today\n", "bogus\n"} {
		m, _ = press(t, m, "/")
		var cmd tea.Cmd
		m, cmd = press(t, m, in)
		if cmd != nil || !m.Status.IsError {
			t.Fatalf("%q: expected error status, got %+v", in, m.Status)
		}
	}
}

func TestPaletteFiltersAndFolderCreation(t *testing.T) {
	backend := newFakeBackend()
	m := loaded(t, backend)
	m, _ = press(t, m, "/")
	m, cmd := press(t, m, "tag grocery\n")
	m = run(t, m, cmd)
	if backend.lastList.Tag != "#grocery" || backend.lastList.Folder != model.TodayID {
		t.Fatalf("unexpected list options %+v", backend.lastList)
	}

	m, _ = press(t, m, "/")
	m, cmd = press(t, m, "folder Errands\n")
	next, follow := m.Update(cmd())
	m = next.(Model)
	if follow == nil {
		t.Fatalf("expected reload after creating folder")
	}
	m = run(t, m, m.loadFolders())
	if m.ActiveFolder() != "f-errands" {
		t.Fatalf("expected new folder selected, got %q", m.ActiveFolder())
	}
}

func TestActionErrorShownInStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.failNext = errors.New("server down")
	m := loaded(t, backend)
	m, _ = press(t, m, "a")
	m, cmd := press(t, m, "x\n")
	m = run(t, m, cmd)
	if !m.Status.IsError || !strings.Contains(m.Status.Text, "server down") {
		t.Fatalf("unexpected status %+v", m.Status)
	}
}

func TestQuit(t *testing.T) {
	m := loaded(t, newFakeBackend())
	m, cmd := press(t, m, "q")
	if !m.Quitting || cmd == nil {
		t.Fatalf("expected quit")
	}
	if m.View() != "" {
		t.Fatalf("expected empty view after quit")
	}
}
