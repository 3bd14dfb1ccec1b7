package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/views"
)

type foldersMsg struct {
	Folders []model.Folder
}

type remindersMsg struct {
	Folder string
	Items  []client.Reminder
}

type statsMsg struct {
	Stats repository.Stats
}

// actionMsg reports a finished mutation. Folder, when set, selects that
// folder's tab once folders are reloaded.
type actionMsg struct {
	Status string
	Folder string
	Err    error
}

type AppErrorMsg struct {
	Err error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadFolders(), m.loadReminders(), m.loadStats(), m.spinner.Tick)
}

func (m Model) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

func (m Model) loadFolders() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		folders, err := m.backend.Folders(ctx)
		if err != nil {
			return AppErrorMsg{Err: fmt.Errorf("load folders: %w", err)}
		}
		return foldersMsg{Folders: folders}
	}
}

func (m Model) loadReminders() tea.Cmd {
	folder := m.ActiveFolder()
	filter := m.Filter
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		var (
			items []client.Reminder
			err   error
		)
		if folder == model.TodayID && filter == (Filter{}) {
			items, err = m.backend.Today(ctx)
		} else {
			items, err = m.backend.ListReminders(ctx, client.ListOptions{Folder: folder, Tag: filter.Tag, Search: filter.Search})
		}
		if err != nil {
			return AppErrorMsg{Err: fmt.Errorf("load reminders: %w", err)}
		}
		return remindersMsg{Folder: folder, Items: items}
	}
}

func (m Model) loadStats() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		stats, err := m.backend.Stats(ctx)
		if err != nil {
			return AppErrorMsg{Err: fmt.Errorf("load stats: %w", err)}
		}
		return statsMsg{Stats: stats}
	}
}

func (m Model) action(fn func(ctx context.Context) (actionMsg, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.ctx()
		defer cancel()
		msg, err := fn(ctx)
		if err != nil {
			msg.Err = err
		}
		return msg
	}
}

func (m Model) reload() tea.Cmd {
	return tea.Batch(m.loadReminders(), m.loadStats())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = typed.Width
		m.detail.Width = typed.Width/2 - 6
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case foldersMsg:
		current := m.ActiveFolder()
		if m.pendingFolder != "" {
			current, m.pendingFolder = m.pendingFolder, ""
		}
		m.Folders = typed.Folders
		m.selectFolder(current)
		return m, nil
	case remindersMsg:
		if typed.Folder != m.ActiveFolder() {
			return m, nil
		}
		m.Items = typed.Items
		m.Loading = false
		if m.Cursor >= len(m.Items) {
			m.Cursor = len(m.Items) - 1
		}
		if m.Cursor < 0 {
			m.Cursor = 0
		}
		m.refreshDetail()
		return m, nil
	case statsMsg:
		m.Stats = typed.Stats
		return m, nil
	case actionMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: "error: " + typed.Err.Error(), IsError: true}
			return m, nil
		}
		m.LastError = nil
		m.Status = StatusBar{Text: typed.Status}
		if typed.Folder != "" {
			m.pendingFolder = typed.Folder
			m.Loading = true
			return m, tea.Batch(m.loadFolders(), m.reload())
		}
		return m, m.reload()
	case AppErrorMsg:
		m.LastError = typed.Err
		m.Loading = false
		if typed.Err != nil {
			m.Status = StatusBar{Text: "error: " + typed.Err.Error(), IsError: true}
		}
		return m, nil
	case tea.KeyMsg:
		switch m.Mode {
		case ModeAdd:
			return m.handleAddKey(typed)
		case ModePalette:
			return m.handlePaletteKey(typed)
		default:
			return m.handleBrowseKey(typed)
		}
	}
	return m, nil
}

// selectFolder moves to the tab holding id, keeping the current tab when
// the id is unknown.
func (m *Model) selectFolder(id string) {
	for i, f := range m.Folders {
		if f.ID == id {
			if i != m.ActiveTab {
				m.Cursor = 0
			}
			m.ActiveTab = i
			return
		}
	}
	if m.ActiveTab >= len(m.Folders) {
		m.ActiveTab = 0
	}
}

func (m *Model) switchTab(delta int) tea.Cmd {
	if len(m.Folders) == 0 {
		return nil
	}
	m.ActiveTab = (m.ActiveTab + delta + len(m.Folders)) % len(m.Folders)
	m.Cursor = 0
	m.Items = nil
	m.Loading = true
	return m.loadReminders()
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		cmd := m.switchTab(1)
		return m, cmd
	case key.Matches(msg, m.keys.Prev):
		cmd := m.switchTab(-1)
		return m, cmd
	case key.Matches(msg, m.keys.Down):
		if m.Cursor < len(m.Items)-1 {
			m.Cursor++
			m.refreshDetail()
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
			m.refreshDetail()
		}
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		rem, ok := m.Selected()
		if !ok {
			return m, nil
		}
		done := !rem.Completed
		return m, m.action(func(ctx context.Context) (actionMsg, error) {
			if _, err := m.backend.SetCompleted(ctx, done, rem.ID); err != nil {
				return actionMsg{}, err
			}
			verb := "completed"
			if !done {
				verb = "reopened"
			}
			return actionMsg{Status: fmt.Sprintf("%s %q", verb, rem.Title)}, nil
		})
	case key.Matches(msg, m.keys.Delete):
		rem, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, m.action(func(ctx context.Context) (actionMsg, error) {
			if err := m.backend.DeleteReminder(ctx, rem.ID); err != nil {
				return actionMsg{}, err
			}
			return actionMsg{Status: fmt.Sprintf("deleted %q", rem.Title)}, nil
		})
	case key.Matches(msg, m.keys.Add):
		m.Mode = ModeAdd
		m.addInput.SetValue("")
		m.addInput.Focus()
		return m, nil
	case key.Matches(msg, m.keys.Palette):
		m.Mode = ModePalette
		m.palette.SetValue("")
		m.palette.Focus()
		m.Status = StatusBar{Text: "command palette active"}
		return m, nil
	case key.Matches(msg, m.keys.Detail):
		m.Detail = !m.Detail
		m.refreshDetail()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.Loading = true
		return m, tea.Batch(m.loadFolders(), m.reload())
	case key.Matches(msg, m.keys.Clear):
		m.Filter = Filter{}
		m.Status = StatusBar{Text: "filter cleared"}
		return m, m.loadReminders()
	case key.Matches(msg, m.keys.Help):
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}
	return m, nil
}

func (m Model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Mode = ModeBrowse
		m.addInput.Blur()
		return m, nil
	case tea.KeyEnter:
		title := strings.TrimSpace(m.addInput.Value())
		m.Mode = ModeBrowse
		m.addInput.Blur()
		m.addInput.SetValue("")
		if title == "" {
			return m, nil
		}
		return m, m.createReminder(client.NewReminder{Title: title})
	}
	var cmd tea.Cmd
	m.addInput, cmd = m.addInput.Update(msg)
	return m, cmd
}

// createReminder files new reminders under the active folder unless it is
// a smart folder.
func (m Model) createReminder(in client.NewReminder) tea.Cmd {
	if folder := m.ActiveFolder(); in.FolderID == "" && !isSmart(folder) {
		in.FolderID = folder
	}
	return m.action(func(ctx context.Context) (actionMsg, error) {
		rem, err := m.backend.CreateReminder(ctx, in)
		if err != nil {
			return actionMsg{}, err
		}
		return actionMsg{Status: fmt.Sprintf("added %q", rem.Title)}, nil
	})
}

func (m *Model) refreshDetail() {
	if !m.Detail {
		return
	}
	rem, ok := m.Selected()
	if !ok {
		m.detail.SetContent("(nothing selected)")
		return
	}
	m.detail.SetContent(views.RenderMarkdown(views.ReminderMarkdown(rem.Reminder)))
	m.detail.GotoTop()
}

func isSmart(id string) bool {
	return model.IsSystemFolder(id) && id != model.InboxID
}
