package tui

import (
	"fmt"
	"strings"

	"github.com/inaciog/reminders-app/internal/views"
)

var paletteHelp = []string{
	"/add <title> [due:tomorrow|YYYY-MM-DD[THH:MM]] [!high|!low] [every:daily|weekly|monthly]",
	"/done <n|id>...",
	"/move <n|id> <folder>",
	"/search <text>",
	"/tag <#tag>",
	"/folder <name>",
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	tabs := make([]string, len(m.Folders))
	for i, f := range m.Folders {
		tabs[i] = f.Name
	}

	rows := make([]views.Row, len(m.Items))
	for i, rem := range m.Items {
		rows[i] = views.RowFrom(rem.Reminder, rem.Overdue)
	}
	title := m.ActiveFolder()
	if m.ActiveTab < len(m.Folders) {
		title = m.Folders[m.ActiveTab].Name
	}
	if m.Filter.Tag != "" {
		title += " " + m.Filter.Tag
	}
	if m.Filter.Search != "" {
		title += fmt.Sprintf(" %q", m.Filter.Search)
	}
	left := views.RenderList(views.ListData{Title: title, Rows: rows, Selected: m.Cursor, Styled: true})
	if m.Loading {
		left = m.spinner.View() + " loading\n" + left
	}

	right := views.RenderStats(views.StatsData{
		Total:        m.Stats.Total,
		Completed:    m.Stats.Completed,
		Pending:      m.Stats.Pending,
		DueToday:     m.Stats.DueToday,
		Overdue:      m.Stats.Overdue,
		HighPriority: m.Stats.HighPriority,
		Recurring:    m.Stats.Recurring,
		Tags:         m.Stats.Tags,
		ByFolder:     m.Stats.ByFolder,
		FolderNames:  m.folderNames(),
	})
	if m.Detail {
		right = m.detail.View()
	}

	var footer []string
	switch m.Mode {
	case ModeAdd:
		footer = append(footer, m.addInput.View())
	case ModePalette:
		footer = append(footer, views.RenderCommandPalette(true, m.palette.View()))
	}
	if m.ShowHelp {
		footer = append(footer, views.RenderHelpPanel(string(m.Mode), paletteHelp, m.help.FullHelpView(m.keys.FullHelp())))
	} else {
		footer = append(footer, m.help.ShortHelpView(m.keys.ShortHelp()))
	}

	var notification string
	if m.LastError != nil {
		notification = views.RenderNotification("error", m.LastError.Error())
	}

	return views.RenderApp(views.AppData{
		Header:       "reminders",
		Tabs:         tabs,
		ActiveTab:    m.ActiveTab,
		LeftPane:     left,
		RightPane:    right,
		StatusLine:   m.Status.Text,
		Footer:       strings.Join(footer, "\n"),
		Notification: notification,
		Width:        m.Width,
	})
}

func (m Model) folderNames() map[string]string {
	out := make(map[string]string, len(m.Folders))
	for _, f := range m.Folders {
		out[f.ID] = f.Name
	}
	return out
}
