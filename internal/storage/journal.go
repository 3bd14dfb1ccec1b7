package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunOK      RunStatus = "ok"
	RunFailed  RunStatus = "failed"
)

// BackupRun is one attempt to copy the data file into the backup directory
// and mirror it remotely.
type BackupRun struct {
	ID           string
	File         string
	Reason       string
	Status       RunStatus
	RemoteStatus string
	Error        string
	Bytes        int64
	StartedAt    time.Time
	FinishedAt   *time.Time
}

type RestoreRecord struct {
	ID         string
	File       string
	Folders    int
	Reminders  int
	RestoredAt time.Time
}

type RunListFilter struct {
	Status RunStatus
	File   string
	Limit  int
	Offset int
}

// Journal records backup and restore activity.
type Journal interface {
	StartRun(ctx context.Context, in BackupRun) error
	FinishRun(ctx context.Context, in BackupRun) error
	GetRun(ctx context.Context, id string) (BackupRun, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]BackupRun, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	RecordRestore(ctx context.Context, in RestoreRecord) error
	ListRestores(ctx context.Context, limit int) ([]RestoreRecord, error)
}
