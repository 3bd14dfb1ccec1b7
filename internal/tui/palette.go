package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/commands"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Mode = ModeBrowse
		m.palette.SetValue("")
		m.palette.Blur()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case tea.KeyEnter:
		input := m.palette.Value()
		m.Mode = ModeBrowse
		m.palette.SetValue("")
		m.palette.Blur()
		return m.executePaletteCommand(input)
	}
	var cmd tea.Cmd
	m.palette, cmd = m.palette.Update(msg)
	return m, cmd
}

func (m Model) executePaletteCommand(input string) (tea.Model, tea.Cmd) {
	cmd, err := commands.Parse(input, m.now())
	if err != nil {
		m.Status = StatusBar{Text: "error: " + err.Error(), IsError: true}
		return m, nil
	}

	var next tea.Cmd
	res, err := commands.Execute(cmd, commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			in := client.NewReminder{Title: a.Title, Priority: a.Priority, Recurring: a.Recurring}
			if a.Due != nil {
				in.DueDate = model.At(*a.Due).Ptr()
			}
			next = m.createReminder(in)
			return commands.Result{Message: fmt.Sprintf("adding %q", a.Title)}, nil
		},
		Done: func(d commands.DoneArgs) (commands.Result, error) {
			ids := make([]string, 0, len(d.Targets))
			for _, target := range d.Targets {
				rem, err := m.resolve(target)
				if err != nil {
					return commands.Result{}, err
				}
				ids = append(ids, rem.ID)
			}
			next = m.action(func(ctx context.Context) (actionMsg, error) {
				n, err := m.backend.SetCompleted(ctx, true, ids...)
				if err != nil {
					return actionMsg{}, err
				}
				return actionMsg{Status: fmt.Sprintf("completed %d reminder(s)", n)}, nil
			})
			return commands.Result{Message: fmt.Sprintf("completing %d reminder(s)", len(ids))}, nil
		},
		Move: func(mv commands.MoveArgs) (commands.Result, error) {
			rem, err := m.resolve(mv.Target)
			if err != nil {
				return commands.Result{}, err
			}
			folder, ok := m.findFolder(mv.Folder)
			if !ok || isSmart(folder.ID) {
				return commands.Result{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("no folder named %q", mv.Folder)}
			}
			next = m.action(func(ctx context.Context) (actionMsg, error) {
				if _, err := m.backend.Bulk(ctx, repository.BulkMove, []string{rem.ID}, folder.ID); err != nil {
					return actionMsg{}, err
				}
				return actionMsg{Status: fmt.Sprintf("moved %q to %s", rem.Title, folder.Name)}, nil
			})
			return commands.Result{Message: "moving"}, nil
		},
		Search: func(s commands.SearchArgs) (commands.Result, error) {
			m.Filter.Search = s.Query
			next = m.loadReminders()
			if s.Query == "" {
				return commands.Result{Message: "search cleared"}, nil
			}
			return commands.Result{Message: fmt.Sprintf("search: %s", s.Query)}, nil
		},
		Tag: func(t commands.TagArgs) (commands.Result, error) {
			m.Filter.Tag = t.Tag
			next = m.loadReminders()
			return commands.Result{Message: fmt.Sprintf("tag filter: %s", t.Tag)}, nil
		},
		Folder: func(f commands.FolderArgs) (commands.Result, error) {
			if folder, ok := m.findFolder(f.Name); ok {
				m.selectFolder(folder.ID)
				m.Items = nil
				next = m.loadReminders()
				return commands.Result{Message: fmt.Sprintf("folder: %s", folder.Name)}, nil
			}
			name := f.Name
			next = m.action(func(ctx context.Context) (actionMsg, error) {
				folder, err := m.backend.CreateFolder(ctx, name, "", "")
				if err != nil {
					return actionMsg{}, err
				}
				return actionMsg{Status: fmt.Sprintf("created folder %s", folder.Name), Folder: folder.ID}, nil
			})
			return commands.Result{Message: fmt.Sprintf("creating folder %s", name)}, nil
		},
	})
	if err != nil {
		m.Status = StatusBar{Text: "error: " + err.Error(), IsError: true}
		return m, nil
	}
	m.Status = StatusBar{Text: res.Message}
	return m, next
}

// resolve finds a reminder by list position or unique id prefix.
func (m Model) resolve(t commands.Target) (client.Reminder, error) {
	if t.Index > 0 {
		if t.Index > len(m.Items) {
			return client.Reminder{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("no reminder at position %d", t.Index)}
		}
		return m.Items[t.Index-1], nil
	}
	var found []client.Reminder
	for _, rem := range m.Items {
		if strings.HasPrefix(rem.ID, t.ID) {
			found = append(found, rem)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return client.Reminder{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("no reminder matches %q", t.ID)}
	default:
		return client.Reminder{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf("%q matches %d reminders", t.ID, len(found))}
	}
}

func (m Model) findFolder(name string) (model.Folder, bool) {
	for _, f := range m.Folders {
		if strings.EqualFold(f.ID, name) || strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return model.Folder{}, false
}
