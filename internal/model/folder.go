package model

import (
	"errors"
	"strings"
	"time"
)

var ErrFolderNameRequired = errors.New("model: folder name is required")

// Well-known folder ids. Inbox is a real container; the rest are smart
// folders whose contents are computed from Filter.
const (
	InboxID     = "inbox"
	TodayID     = "today"
	ScheduledID = "scheduled"
	AllID       = "all"
	CompletedID = "completed"
)

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	CreatedAt Timestamp `json:"createdAt"`
	Smart     bool      `json:"smart,omitempty"`
	Filter    string    `json:"filter,omitempty"`
}

func (f Folder) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("model: folder id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return ErrFolderNameRequired
	}
	return nil
}

// SystemFolders returns the inbox and the four smart folder descriptors.
func SystemFolders(now time.Time) []Folder {
	created := At(now)
	return []Folder{
		{ID: InboxID, Name: "Inbox", Color: "#007AFF", Icon: "inbox", CreatedAt: created},
		{ID: TodayID, Name: "Today", Color: "#FF9500", Icon: "calendar", CreatedAt: created, Smart: true, Filter: TodayID},
		{ID: ScheduledID, Name: "Scheduled", Color: "#FF3B30", Icon: "clock", CreatedAt: created, Smart: true, Filter: ScheduledID},
		{ID: AllID, Name: "All", Color: "#5856D6", Icon: "tray", CreatedAt: created, Smart: true, Filter: AllID},
		{ID: CompletedID, Name: "Completed", Color: "#8E8E93", Icon: "checkmark", CreatedAt: created, Smart: true, Filter: CompletedID},
	}
}

// IsSystemFolder reports whether id names the inbox or a smart folder.
func IsSystemFolder(id string) bool {
	switch id {
	case InboxID, TodayID, ScheduledID, AllID, CompletedID:
		return true
	default:
		return false
	}
}
