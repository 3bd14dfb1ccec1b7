package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier for reminders and subtasks.
func NewID() string {
	return uuid.NewString()
}

// NewShortID returns an 8 character random token used for folder ids.
func NewShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
