// Package commands parses and dispatches the TUI command palette.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
)

type Type string

const (
	TypeAdd    Type = "add"
	TypeDone   Type = "done"
	TypeMove   Type = "move"
	TypeSearch Type = "search"
	TypeTag    Type = "tag"
	TypeFolder Type = "folder"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs is "/add title words [due:2026-03-01[T09:30]] [!high|!low]
// [every:daily|weekly|monthly]". Options may appear anywhere in the line.
type AddArgs struct {
	Title     string
	Due       *time.Time
	Priority  model.Priority
	Recurring model.Recurrence
}

// Target names a reminder either by its 1-based position in the current
// list or by an id prefix.
type Target struct {
	Index int
	ID    string
}

type DoneArgs struct {
	Targets []Target
}

type MoveArgs struct {
	Target Target
	Folder string
}

type SearchArgs struct {
	Query string
}

type TagArgs struct {
	Tag string
}

type FolderArgs struct {
	Name string
}

type Command struct {
	Type   Type
	Raw    string
	Add    *AddArgs
	Done   *DoneArgs
	Move   *MoveArgs
	Search *SearchArgs
	Tag    *TagArgs
	Folder *FolderArgs
}

// Parse reads one palette line. now anchors relative due dates.
func Parse(input string, now time.Time) (Command, error) {
	raw := strings.TrimSpace(input)
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args, now)
	case TypeDone:
		return parseDone(input, args)
	case TypeMove:
		return parseMove(input, args)
	case TypeSearch:
		return Command{Type: TypeSearch, Raw: input, Search: &SearchArgs{Query: strings.Join(args, " ")}}, nil
	case TypeTag:
		return parseTag(input, args)
	case TypeFolder:
		if len(args) == 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "folder requires a name"}
		}
		return Command{Type: TypeFolder, Raw: input, Folder: &FolderArgs{Name: strings.Join(args, " ")}}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAdd(raw string, args []string, now time.Time) (Command, error) {
	out := AddArgs{Priority: model.PriorityNormal}
	title := make([]string, 0, len(args))
	for _, arg := range args {
		lower := strings.ToLower(arg)
		switch {
		case lower == "!high":
			out.Priority = model.PriorityHigh
		case lower == "!low":
			out.Priority = model.PriorityLow
		case strings.HasPrefix(lower, "every:"):
			rec, err := model.ParseRecurrence(strings.TrimPrefix(lower, "every:"))
			if err != nil || rec == model.RecurrenceNone {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown recurrence %q", arg)}
			}
			out.Recurring = rec
		case strings.HasPrefix(lower, "due:"):
			due, err := parseDue(strings.TrimPrefix(lower, "due:"), now)
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
			}
			out.Due = &due
		default:
			title = append(title, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(title, " "))
	if out.Title == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a title"}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &out}, nil
}

// parseDue accepts today, tomorrow, YYYY-MM-DD and YYYY-MM-DDTHH:MM in
// local time. Dates without a time fall at 09:00.
func parseDue(v string, now time.Time) (time.Time, error) {
	at9 := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 9, 0, 0, 0, time.Local)
	}
	switch v {
	case "today":
		return at9(now), nil
	case "tomorrow":
		return at9(now.AddDate(0, 0, 1)), nil
	}
	if t, err := time.ParseInLocation("2006-01-02t15:04", v, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, time.Local); err == nil {
		return at9(t), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse due date %q", v)
}

func parseTarget(arg string) Target {
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err == nil && fmt.Sprint(n) == arg && n > 0 {
		return Target{Index: n}
	}
	return Target{ID: arg}
}

func parseDone(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "done requires at least one target"}
	}
	targets := make([]Target, 0, len(args))
	for _, arg := range args {
		targets = append(targets, parseTarget(arg))
	}
	return Command{Type: TypeDone, Raw: raw, Done: &DoneArgs{Targets: targets}}, nil
}

func parseMove(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "move requires a target and a folder"}
	}
	return Command{Type: TypeMove, Raw: raw, Move: &MoveArgs{Target: parseTarget(args[0]), Folder: strings.Join(args[1:], " ")}}, nil
}

func parseTag(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "tag requires exactly one tag"}
	}
	tag := strings.ToLower(args[0])
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return Command{Type: TypeTag, Raw: raw, Tag: &TagArgs{Tag: tag}}, nil
}
