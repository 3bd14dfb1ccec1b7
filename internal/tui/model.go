// Package tui is the interactive terminal client. It renders folders as
// tabs over a running server and edits reminders through the HTTP API.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

// Backend is the part of the HTTP client the TUI uses.
type Backend interface {
	Folders(ctx context.Context) ([]model.Folder, error)
	ListReminders(ctx context.Context, opts client.ListOptions) ([]client.Reminder, error)
	Today(ctx context.Context) ([]client.Reminder, error)
	CreateReminder(ctx context.Context, in client.NewReminder) (model.Reminder, error)
	SetCompleted(ctx context.Context, done bool, ids ...string) (int, error)
	DeleteReminder(ctx context.Context, id string) error
	Bulk(ctx context.Context, action repository.BulkAction, ids []string, folderID string) (int, error)
	CreateFolder(ctx context.Context, name, color, icon string) (model.Folder, error)
	Stats(ctx context.Context) (repository.Stats, error)
}

type Mode string

const (
	ModeBrowse  Mode = "browse"
	ModeAdd     Mode = "add"
	ModePalette Mode = "palette"
)

type StatusBar struct {
	Text    string
	IsError bool
}

type Filter struct {
	Search string
	Tag    string
}

type Model struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time

	Folders   []model.Folder
	ActiveTab int
	Items     []client.Reminder
	Cursor    int
	Filter    Filter
	Stats     repository.Stats
	Mode      Mode
	Status    StatusBar
	Detail    bool
	Loading   bool
	ShowHelp  bool
	Quitting  bool
	LastError error
	Width     int

	pendingFolder string

	keys     keyMap
	addInput textinput.Model
	palette  textinput.Model
	spinner  spinner.Model
	help     help.Model
	detail   viewport.Model
}

type Option func(*Model)

func WithTimeout(d time.Duration) Option {
	return func(m *Model) { m.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

func New(backend Backend, opts ...Option) Model {
	m := Model{
		backend: backend,
		timeout: 10 * time.Second,
		now:     time.Now,
		Mode:    ModeBrowse,
		keys:    defaultKeyMap(),
		Width:   120,
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.addInput = textinput.New()
	m.addInput.Prompt = "add> "
	m.addInput.Placeholder = "title #tag"
	m.addInput.CharLimit = 256
	m.addInput.Width = 48

	m.palette = textinput.New()
	m.palette.Prompt = "/"
	m.palette.CharLimit = 256
	m.palette.Width = 48

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot

	m.help = help.New()
	m.detail = viewport.New(56, 16)
	return m
}

// ActiveFolder is the folder id of the selected tab.
func (m Model) ActiveFolder() string {
	if m.ActiveTab < 0 || m.ActiveTab >= len(m.Folders) {
		return model.TodayID
	}
	return m.Folders[m.ActiveTab].ID
}

func (m Model) Selected() (client.Reminder, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Items) {
		return client.Reminder{}, false
	}
	return m.Items[m.Cursor], true
}

type keyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Add     key.Binding
	Delete  key.Binding
	Detail  key.Binding
	Palette key.Binding
	Refresh key.Binding
	Clear   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:    key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab/l", "next folder")),
		Prev:    key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab/h", "previous folder")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space/x", "toggle complete")),
		Add:     key.NewBinding(key.WithKeys("a", "n"), key.WithHelp("a", "add reminder")),
		Delete:  key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		Detail:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Palette: key.NewBinding(key.WithKeys("/", ":"), key.WithHelp("/", "command palette")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear filter")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Add, k.Palette, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Up, k.Down},
		{k.Toggle, k.Add, k.Delete, k.Detail},
		{k.Palette, k.Refresh, k.Clear, k.Help, k.Quit},
	}
}
