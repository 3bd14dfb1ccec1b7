package assistant

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/backup"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/server"
	"github.com/inaciog/reminders-app/internal/storage"
	mcppkg "github.com/mark3labs/mcp-go/mcp"
)

type fakeBackend struct {
	created []client.NewReminder
	listed  []client.ListOptions
	items   []client.Reminder
	bulk    []string
	action  repository.BulkAction
	folder  string
	err     error
}

func (f *fakeBackend) CreateReminder(_ context.Context, in client.NewReminder) (model.Reminder, error) {
	if f.err != nil {
		return model.Reminder{}, f.err
	}
	f.created = append(f.created, in)
	return model.Reminder{ID: "r-1", Title: in.Title, Priority: in.Priority, Recurring: in.Recurring, DueDate: in.DueDate}, nil
}

func (f *fakeBackend) ListReminders(_ context.Context, opts client.ListOptions) ([]client.Reminder, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.listed = append(f.listed, opts)
	return f.items, nil
}

func (f *fakeBackend) Stats(context.Context) (repository.Stats, error) {
	if f.err != nil {
		return repository.Stats{}, f.err
	}
	return repository.Stats{Total: 3, Completed: 1, Pending: 2, Overdue: 1, ByFolder: map[string]int{"inbox": 3}}, nil
}

func (f *fakeBackend) Bulk(_ context.Context, action repository.BulkAction, ids []string, folderID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.action, f.bulk, f.folder = action, ids, folderID
	return len(ids), nil
}

func callResultText(t *testing.T, res *mcppkg.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected non-empty tool result")
	}
	text, ok := mcppkg.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content")
	}
	return text.Text
}

func call(t *testing.T, h func(context.Context, mcppkg.CallToolRequest) (*mcppkg.CallToolResult, error), args map[string]any) *mcppkg.CallToolResult {
	t.Helper()
	res, err := h(context.Background(), mcppkg.CallToolRequest{Params: mcppkg.CallToolParams{Arguments: args}})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return res
}

func TestNewServerRegistersTools(t *testing.T) {
	if srv := NewServer(&fakeBackend{}, "test"); srv == nil {
		t.Fatalf("expected MCP server instance")
	}
}

func TestCreateParsesArguments(t *testing.T) {
	f := &fakeBackend{}
	res := call(t, handleCreate(f), map[string]any{
		"title":     "  water plants #home ",
		"due":       "2026-06-01T18:30",
		"priority":  "HIGH",
		"recurring": "weekly",
		"subtasks":  []any{"kitchen", " ", "balcony"},
	})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", callResultText(t, res))
	}
	if len(f.created) != 1 {
		t.Fatalf("expected one create, got %d", len(f.created))
	}
	in := f.created[0]
	if in.Title != "water plants #home" {
		t.Fatalf("title not trimmed: %q", in.Title)
	}
	want := time.Date(2026, 6, 1, 18, 30, 0, 0, time.Local)
	if in.DueDate == nil || !in.DueDate.Equal(want) {
		t.Fatalf("due = %v, want %v", in.DueDate, want)
	}
	if in.Priority != model.PriorityHigh || in.Recurring != model.RecurrenceWeekly {
		t.Fatalf("priority/recurring = %q/%q", in.Priority, in.Recurring)
	}
	if len(in.Subtasks) != 2 || in.Subtasks[1] != "balcony" {
		t.Fatalf("subtasks = %v", in.Subtasks)
	}
	text := callResultText(t, res)
	if !strings.Contains(text, `Reminder created: "water plants #home" (id r-1)`) || !strings.Contains(text, "↻ weekly") {
		t.Fatalf("unexpected output: %q", text)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	cases := map[string]map[string]any{
		"missing title":  {"title": "  "},
		"bad due":        {"title": "x", "due": "next week"},
		"bad priority":   {"title": "x", "priority": "urgent"},
		"bad recurrence": {"title": "x", "recurring": "yearly"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			f := &fakeBackend{}
			res := call(t, handleCreate(f), args)
			if !res.IsError {
				t.Fatalf("expected tool error, got %q", callResultText(t, res))
			}
			if len(f.created) != 0 {
				t.Fatalf("backend should not be called")
			}
		})
	}
}

func TestCreateNoneRecurrence(t *testing.T) {
	f := &fakeBackend{}
	res := call(t, handleCreate(f), map[string]any{"title": "once", "recurring": "none"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", callResultText(t, res))
	}
	if f.created[0].Recurring != model.RecurrenceNone {
		t.Fatalf("recurring = %q", f.created[0].Recurring)
	}
}

func TestListFormatsAndLimits(t *testing.T) {
	f := &fakeBackend{items: []client.Reminder{
		{Reminder: model.Reminder{ID: "a", Title: "first"}},
		{Reminder: model.Reminder{ID: "b", Title: "second", Priority: model.PriorityHigh}, Overdue: true},
		{Reminder: model.Reminder{ID: "c", Title: "third"}},
	}}
	res := call(t, handleList(f), map[string]any{"folder": "today", "completed": false, "tag": "#work", "limit": float64(2)})
	text := callResultText(t, res)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	opts := f.listed[0]
	if opts.Folder != "today" || opts.Tag != "#work" || opts.Completed == nil || *opts.Completed {
		t.Fatalf("unexpected list options: %+v", opts)
	}
	for _, want := range []string{"Found 3 reminders", "[id a]", "!! second", "... and 1 more"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
	if strings.Contains(text, "third") {
		t.Fatalf("limit not applied: %q", text)
	}
}

func TestListEmpty(t *testing.T) {
	res := call(t, handleList(&fakeBackend{}), map[string]any{})
	if got := callResultText(t, res); got != "No reminders found." {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStats(t *testing.T) {
	res := call(t, handleStats(&fakeBackend{}), map[string]any{})
	text := callResultText(t, res)
	if !strings.Contains(text, "total: 3  pending: 2  completed: 1") || !strings.Contains(text, "- inbox: 3") {
		t.Fatalf("unexpected stats: %q", text)
	}
}

func TestBulkValidation(t *testing.T) {
	f := &fakeBackend{}
	for name, args := range map[string]map[string]any{
		"unknown action":   {"action": "archive", "ids": []any{"a"}},
		"empty ids":        {"action": "complete", "ids": []any{}},
		"move sans folder": {"action": "move", "ids": []any{"a"}},
	} {
		if res := call(t, handleBulk(f), args); !res.IsError {
			t.Fatalf("%s: expected tool error", name)
		}
	}
	if f.bulk != nil {
		t.Fatalf("backend should not be called")
	}

	res := call(t, handleBulk(f), map[string]any{"action": "move", "ids": "a, b", "folder": "work"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", callResultText(t, res))
	}
	if f.action != repository.BulkMove || f.folder != "work" || len(f.bulk) != 2 {
		t.Fatalf("unexpected bulk call: %s %v %s", f.action, f.bulk, f.folder)
	}
	if got := callResultText(t, res); got != "move: 2 of 2 reminders updated" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestBackendErrorsBecomeToolErrors(t *testing.T) {
	f := &fakeBackend{err: errors.New("boom")}
	for name, h := range map[string]func(context.Context, mcppkg.CallToolRequest) (*mcppkg.CallToolResult, error){
		ToolCreate: handleCreate(f),
		ToolList:   handleList(f),
		ToolStats:  handleStats(f),
		ToolBulk:   handleBulk(f),
	} {
		res := call(t, h, map[string]any{"title": "x", "action": "complete", "ids": []any{"a"}})
		if !res.IsError || !strings.Contains(callResultText(t, res), "boom") {
			t.Fatalf("%s: expected error result", name)
		}
	}
}

func TestToolsAgainstServer(t *testing.T) {
	const secret = "s3cret"
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	logger := log.New(io.Discard)
	repo := repository.New(repository.WithClock(clock))
	store := storage.NewStore(filepath.Join(dir, "reminders.json"), filepath.Join(dir, "backups"), repo, logger, storage.WithStoreClock(clock))
	if err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := server.New(server.Deps{
		Repo:            repo,
		Store:           store,
		Backups:         backup.New(backup.Config{DataFile: store.Path(), Dir: store.BackupDir()}, logger, backup.WithClock(clock)),
		AssistantSecret: secret,
		Logger:          logger,
		Now:             clock,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	b := client.New(ts.URL, client.WithHTTPClient(ts.Client()), client.WithSecret(secret))

	res := call(t, handleCreate(b), map[string]any{"title": "call the bank", "due": "2026-06-01T15:00"})
	if res.IsError {
		t.Fatalf("create failed: %s", callResultText(t, res))
	}
	items := repo.ListReminders(repository.Filter{})
	if len(items) != 1 || items[0].Source != model.SourceAssistant {
		t.Fatalf("expected one assistant reminder, got %+v", items)
	}

	res = call(t, handleList(b), map[string]any{"folder": "today"})
	if text := callResultText(t, res); !strings.Contains(text, "call the bank") {
		t.Fatalf("today list missing reminder: %q", text)
	}

	res = call(t, handleBulk(b), map[string]any{"action": "complete", "ids": []any{items[0].ID}})
	if got := callResultText(t, res); got != "complete: 1 of 1 reminders updated" {
		t.Fatalf("unexpected bulk output: %q", got)
	}

	bad := client.New(ts.URL, client.WithHTTPClient(ts.Client()), client.WithSecret("wrong"))
	res = call(t, handleStats(bad), map[string]any{})
	if !res.IsError {
		t.Fatalf("expected wrong secret to fail")
	}
}
