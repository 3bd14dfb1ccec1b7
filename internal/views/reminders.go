package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
)

const dueLayout = "Mon Jan 2 15:04"

// Row is one reminder line.
type Row struct {
	ID        string
	Title     string
	Folder    string
	Due       time.Time
	Priority  model.Priority
	Recurring model.Recurrence
	Completed bool
	Overdue   bool
	Subtasks  int
	Done      int
}

func RowFrom(rem model.Reminder, overdue bool) Row {
	row := Row{
		ID:        rem.ID,
		Title:     rem.Title,
		Folder:    rem.FolderID,
		Priority:  rem.Priority,
		Recurring: rem.Recurring,
		Completed: rem.Completed,
		Overdue:   overdue,
		Subtasks:  len(rem.Subtasks),
	}
	if rem.DueDate != nil {
		row.Due = rem.DueDate.Time
	}
	for _, st := range rem.Subtasks {
		if st.Completed {
			row.Done++
		}
	}
	return row
}

// RenderRow formats one line. Styling is skipped for plain output.
func RenderRow(row Row, index int, selected, styled bool) string {
	check := "[ ]"
	if row.Completed {
		check = "[x]"
	}
	var b strings.Builder
	if index > 0 {
		fmt.Fprintf(&b, "%2d. ", index)
	}
	b.WriteString(check + " ")

	title := row.Title
	if styled {
		switch {
		case row.Completed:
			title = doneStyle.Render(title)
		case row.Priority == model.PriorityHigh:
			title = highStyle.Render(title)
		case row.Priority == model.PriorityLow:
			title = lowStyle.Render(title)
		}
	}
	if !styled {
		switch row.Priority {
		case model.PriorityHigh:
			b.WriteString("!! ")
		case model.PriorityLow:
			b.WriteString("↓ ")
		}
	}
	b.WriteString(title)

	if !row.Due.IsZero() {
		due := "due " + row.Due.Local().Format(dueLayout)
		if row.Overdue {
			due += " (overdue)"
			if styled {
				due = overdueStyle.Render(due)
			}
		}
		b.WriteString("  " + due)
	}
	if row.Recurring != model.RecurrenceNone {
		b.WriteString("  ↻ " + string(row.Recurring))
	}
	if row.Subtasks > 0 {
		fmt.Fprintf(&b, "  [%d/%d]", row.Done, row.Subtasks)
	}
	line := b.String()
	if selected {
		cursor := "> "
		if styled {
			cursor = cursorStyle.Render(cursor)
		}
		return cursor + line
	}
	return "  " + line
}

type ListData struct {
	Title    string
	Rows     []Row
	Selected int
	Styled   bool
	Empty    string
}

func RenderList(data ListData) string {
	var b strings.Builder
	if data.Title != "" {
		b.WriteString(data.Title + ":\n")
	}
	if len(data.Rows) == 0 {
		empty := data.Empty
		if empty == "" {
			empty = "(no reminders)"
		}
		b.WriteString(empty)
		return b.String()
	}
	for i, row := range data.Rows {
		b.WriteString(RenderRow(row, i+1, data.Styled && i == data.Selected, data.Styled))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

type StatsData struct {
	Total        int
	Completed    int
	Pending      int
	DueToday     int
	Overdue      int
	HighPriority int
	Recurring    int
	Tags         int
	ByFolder     map[string]int
	FolderNames  map[string]string
}

func RenderStats(data StatsData) string {
	var b strings.Builder
	b.WriteString("stats:\n")
	fmt.Fprintf(&b, "total: %d  pending: %d  completed: %d\n", data.Total, data.Pending, data.Completed)
	fmt.Fprintf(&b, "due today: %d  overdue: %d  high priority: %d\n", data.DueToday, data.Overdue, data.HighPriority)
	fmt.Fprintf(&b, "recurring: %d  tags: %d\n", data.Recurring, data.Tags)
	if len(data.ByFolder) > 0 {
		keys := make([]string, 0, len(data.ByFolder))
		for id := range data.ByFolder {
			keys = append(keys, id)
		}
		sort.Strings(keys)
		b.WriteString("by folder:\n")
		for _, id := range keys {
			name := id
			if n, ok := data.FolderNames[id]; ok {
				name = n
			}
			fmt.Fprintf(&b, "- %s: %d\n", name, data.ByFolder[id])
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ReminderMarkdown is the detail view source rendered through glamour.
func ReminderMarkdown(rem model.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rem.Title)
	fmt.Fprintf(&b, "- **Folder:** %s\n", rem.FolderID)
	fmt.Fprintf(&b, "- **Priority:** %s\n", rem.Priority)
	if rem.DueDate != nil {
		fmt.Fprintf(&b, "- **Due:** %s\n", rem.DueDate.Local().Format(dueLayout))
	}
	if rem.Recurring != model.RecurrenceNone {
		fmt.Fprintf(&b, "- **Repeats:** %s\n", rem.Recurring)
	}
	if tags := model.ExtractTags(rem.TagText()); len(tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(tags, " "))
	}
	if rem.Completed && rem.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Completed:** %s\n", rem.CompletedAt.Local().Format(dueLayout))
	}
	if len(rem.Subtasks) > 0 {
		b.WriteString("\n## Subtasks\n\n")
		for _, st := range rem.Subtasks {
			mark := " "
			if st.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, st.Title)
		}
	}
	if strings.TrimSpace(rem.Notes) != "" {
		b.WriteString("\n## Notes\n\n" + rem.Notes + "\n")
	}
	return b.String()
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderNotification(level string, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("[%s] %s", strings.ToUpper(level), body)
}

func RenderHelpPanel(current string, bindings []string, helpView string) string {
	return fmt.Sprintf("help (%s):\n%s\n%s", strings.ToLower(current), strings.Join(bindings, "\n"), helpView)
}
