package server

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

type folderRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// subtaskTitles accepts ["a", "b"] or [{"title": "a"}].
type subtaskTitles []string

func (s *subtaskTitles) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var title string
			if err := json.Unmarshal(item, &title); err != nil {
				return err
			}
			out = append(out, title)
			continue
		}
		var obj struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		out = append(out, obj.Title)
	}
	*s = out
	return nil
}

type reminderRequest struct {
	Title     string           `json:"title"`
	Notes     string           `json:"notes"`
	FolderID  string           `json:"folderId"`
	DueDate   *model.Timestamp `json:"dueDate"`
	Priority  string           `json:"priority"`
	Recurring model.Recurrence `json:"recurring"`
	Subtasks  subtaskTitles    `json:"subtasks"`
}

func (req reminderRequest) input(source string) repository.ReminderInput {
	return repository.ReminderInput{
		Title:     req.Title,
		Notes:     req.Notes,
		FolderID:  req.FolderID,
		DueDate:   req.DueDate,
		Priority:  model.Priority(req.Priority),
		Recurring: req.Recurring,
		Subtasks:  req.Subtasks,
		Source:    source,
	}
}

// fields keeps the raw members of a PATCH body so an explicit null can be
// told apart from an omitted field.
type fields map[string]json.RawMessage

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f fields) isNull(key string) bool {
	return bytes.Equal(bytes.TrimSpace(f[key]), []byte("null"))
}

func (f fields) decode(key string, dst any) (bool, error) {
	raw, ok := f[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, badRequest("field %s: %v", key, err)
	}
	return true, nil
}

func (f fields) folderPatch() (repository.FolderPatch, error) {
	var p repository.FolderPatch
	for key, dst := range map[string]**string{"name": &p.Name, "color": &p.Color, "icon": &p.Icon} {
		var v string
		ok, err := f.decode(key, &v)
		if err != nil {
			return p, err
		}
		if ok {
			*dst = &v
		}
	}
	return p, nil
}

func (f fields) reminderPatch() (repository.ReminderPatch, error) {
	var p repository.ReminderPatch
	for key, dst := range map[string]**string{"title": &p.Title, "notes": &p.Notes, "folderId": &p.FolderID} {
		if f.has(key) && f.isNull(key) && key != "title" {
			empty := ""
			*dst = &empty
			continue
		}
		var v string
		ok, err := f.decode(key, &v)
		if err != nil {
			return p, err
		}
		if ok {
			*dst = &v
		}
	}
	var completed bool
	if ok, err := f.decode("completed", &completed); err != nil {
		return p, err
	} else if ok {
		p.Completed = &completed
	}
	if f.has("dueDate") {
		due := model.Timestamp{}
		if !f.isNull("dueDate") {
			if _, err := f.decode("dueDate", &due); err != nil {
				return p, err
			}
		}
		p.DueDate = &due
	}
	if f.has("priority") {
		var raw string
		if !f.isNull("priority") {
			if _, err := f.decode("priority", &raw); err != nil {
				return p, err
			}
		}
		priority := model.Priority(raw)
		p.Priority = &priority
	}
	if f.has("recurring") {
		var rec model.Recurrence
		if _, err := f.decode("recurring", &rec); err != nil {
			return p, err
		}
		p.Recurring = &rec
	}
	if f.has("subtasks") {
		subtasks := []model.Subtask{}
		if !f.isNull("subtasks") {
			if _, err := f.decode("subtasks", &subtasks); err != nil {
				return p, err
			}
		}
		p.Subtasks = &subtasks
	}
	return p, nil
}

type subtaskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type bulkRequest struct {
	Secret   string   `json:"secret"`
	Action   string   `json:"action"`
	IDs      []string `json:"ids"`
	FolderID string   `json:"folderId"`
}

type restoreRequest struct {
	BackupFile string `json:"backupFile"`
}

// filterFromQuery reads folder, completed, tag and search. The smart
// folder ids select their computed views.
func filterFromQuery(q url.Values) (repository.Filter, error) {
	var f repository.Filter
	no, yes := false, true
	switch folder := strings.TrimSpace(q.Get("folder")); folder {
	case "":
	case model.TodayID:
		f.DueToday = true
	case model.ScheduledID:
		f.Scheduled = true
		f.Completed = &no
	case model.AllID:
		f.Completed = &no
	case model.CompletedID:
		f.Completed = &yes
	default:
		f.FolderID = folder
	}
	if raw := strings.TrimSpace(q.Get("completed")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, badRequest("completed must be true or false, got %q", raw)
		}
		f.Completed = &v
	}
	f.Tag = q.Get("tag")
	f.Search = q.Get("search")
	return f, nil
}
