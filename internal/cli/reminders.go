package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/commands"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/views"
	"github.com/spf13/cobra"
)

type listOptions struct {
	folder    string
	tag       string
	search    string
	completed bool
	markdown  bool
}

func newListCmd(e *env) *cobra.Command {
	o := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders",
		Example: `
reminders list
reminders list --folder today
reminders list --tag work --completed=false
reminders list --search dentist --markdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.ListOptions{Folder: o.folder, Tag: o.tag, Search: o.search}
			if cmd.Flags().Changed("completed") {
				opts.Completed = &o.completed
			}
			items, err := e.client().ListReminders(cmd.Context(), opts)
			if err != nil {
				return err
			}
			title := o.folder
			if title == "" {
				title = "reminders"
			}
			return printReminders(cmd.OutOrStdout(), title, items, o.markdown)
		},
	}
	cmd.Flags().StringVarP(&o.folder, "folder", "f", "", "folder id or smart folder (today, scheduled, all, completed)")
	cmd.Flags().StringVarP(&o.tag, "tag", "t", "", "only reminders with this #tag")
	cmd.Flags().StringVarP(&o.search, "search", "s", "", "text search over title and notes")
	cmd.Flags().BoolVar(&o.completed, "completed", false, "only completed (true) or open (false) reminders")
	cmd.Flags().BoolVar(&o.markdown, "markdown", false, "render through glamour")
	return cmd
}

func newTodayCmd(e *env) *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Reminders due today, plus overdue ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := e.client().Today(cmd.Context())
			if err != nil {
				return err
			}
			return printReminders(cmd.OutOrStdout(), "today", items, markdown)
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render through glamour")
	return cmd
}

type addOptions struct {
	folder   string
	notes    string
	subtasks []string
}

func newAddCmd(e *env) *cobra.Command {
	o := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add <title words...>",
		Short: "Create a reminder",
		Long: `Create a reminder. The title accepts the same inline options as the
TUI command palette:

  !high | !low                         priority
  due:today | due:tomorrow             due at 09:00 local
  due:YYYY-MM-DD | due:YYYY-MM-DDTHH:MM
  every:daily | every:weekly | every:monthly`,
		Example: `
reminders add pay rent due:2026-11-01 every:monthly !high
reminders add call mum #family due:tomorrow --subtask "find number"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse("/add "+strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			in := client.NewReminder{
				Title:     parsed.Add.Title,
				Notes:     o.notes,
				FolderID:  o.folder,
				Priority:  parsed.Add.Priority,
				Recurring: parsed.Add.Recurring,
				Subtasks:  o.subtasks,
			}
			if parsed.Add.Due != nil {
				due := model.At(*parsed.Add.Due)
				in.DueDate = &due
			}
			rem, err := e.client().CreateReminder(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n%s\n", rem.ID, views.RenderRow(views.RowFrom(rem, false), 0, false, false))
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.folder, "folder", "f", "", "folder id (default inbox)")
	cmd.Flags().StringVarP(&o.notes, "notes", "n", "", "notes")
	cmd.Flags().StringArrayVar(&o.subtasks, "subtask", nil, "subtask title (repeatable)")
	return cmd
}

func newDoneCmd(e *env) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>...",
		Short: "Mark reminders complete",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := e.client().SetCompleted(cmd.Context(), !undo, args...)
			if err != nil {
				return err
			}
			verb := "completed"
			if undo {
				verb = "reopened"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d reminders\n", verb, n, len(args))
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark incomplete instead")
	return cmd
}

func printReminders(w io.Writer, title string, items []client.Reminder, markdown bool) error {
	if markdown {
		_, err := fmt.Fprintln(w, views.RenderMarkdown(remindersMarkdown(title, items)))
		return err
	}
	rows := make([]views.Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, views.RowFrom(item.Reminder, item.Overdue))
	}
	_, err := fmt.Fprintln(w, views.RenderList(views.ListData{Title: title, Rows: rows}))
	return err
}

func remindersMarkdown(title string, items []client.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(items) == 0 {
		b.WriteString("_no reminders_\n")
		return b.String()
	}
	for _, item := range items {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] **%s**", mark, item.Title)
		if item.DueDate != nil {
			fmt.Fprintf(&b, " due %s", item.DueDate.Local().Format("Mon Jan 2 15:04"))
		}
		if item.Overdue {
			b.WriteString(" _(overdue)_")
		}
		if item.Priority == model.PriorityHigh {
			b.WriteString(" `high`")
		}
		fmt.Fprintf(&b, " `%s`\n", item.ID)
	}
	return b.String()
}
