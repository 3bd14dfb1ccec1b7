// Package backup copies the data file into timestamped backups, prunes old
// ones and mirrors the directory to remote storage with an external command.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/storage"
)

var (
	ErrSyncFailed = errors.New("backup: remote sync failed")
	ErrNoDataFile = errors.New("backup: data file does not exist")
)

const (
	filePrefix = "reminders_"
	fileSuffix = ".json"
	nameLayout = "20060102_150405"

	RemoteSkipped = "skipped"
	RemoteOK      = "ok"
	RemoteFailed  = "failed"
)

type Config struct {
	DataFile    string
	Dir         string
	Retention   time.Duration
	SyncCommand string
	SyncTimeout time.Duration
}

// Result is the outcome of one backup run. Err covers the local copy;
// SyncErr covers the remote mirror, which is best effort.
type Result struct {
	RunID        string
	Reason       string
	File         string
	Bytes        int64
	Pruned       int
	RemoteStatus string
	StartedAt    time.Time
	FinishedAt   time.Time
	Err          error
	SyncErr      error
}

// CommandRunner executes the remote sync command. Tests replace it.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Option func(*Manager)

func WithJournal(j storage.Journal) Option {
	return func(m *Manager) { m.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithCommandRunner(r CommandRunner) Option {
	return func(m *Manager) { m.runCmd = r }
}

func WithResultBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.results = make(chan Result, n)
		}
	}
}

type Manager struct {
	cfg     Config
	logger  *log.Logger
	journal storage.Journal
	now     func() time.Time
	runCmd  CommandRunner

	results chan Result
	dropped atomic.Uint64

	mu            sync.Mutex
	running       bool
	pending       bool
	pendingReason string
	closed        bool
	wg            sync.WaitGroup
}

func New(cfg Config, logger *log.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		runCmd:  execRunner,
		results: make(chan Result, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string { return m.cfg.Dir }

// Results delivers the outcome of every asynchronous run. A result is
// dropped, and counted, when the buffer is full.
func (m *Manager) Results() <-chan Result { return m.results }

func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// Trigger starts a backup in the background and returns at once. Requests
// arriving while a run is in flight collapse into one follow-up run.
func (m *Manager) Trigger(reason string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.running {
		m.pending = true
		m.pendingReason = reason
		m.mu.Unlock()
		return
	}
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(reason)
}

func (m *Manager) loop(reason string) {
	defer m.wg.Done()
	for {
		m.publish(m.Run(context.Background(), reason))

		m.mu.Lock()
		if !m.pending || m.closed {
			m.running = false
			m.pending = false
			m.mu.Unlock()
			return
		}
		reason = m.pendingReason
		m.pending = false
		m.mu.Unlock()
	}
}

func (m *Manager) publish(res Result) {
	select {
	case m.results <- res:
	default:
		m.dropped.Add(1)
	}
}

// Close stops accepting triggers, waits for in-flight runs and closes the
// results channel.
func (m *Manager) Close() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
	if !already {
		close(m.results)
	}
}

// Wait blocks until no asynchronous run is in flight.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Run performs one backup synchronously: copy, prune, remote sync and
// journal. It never panics on I/O failures; they are reported in Result.
func (m *Manager) Run(ctx context.Context, reason string) Result {
	started := m.now()
	res := Result{
		RunID:        model.NewID(),
		Reason:       reason,
		File:         FileName(started),
		RemoteStatus: RemoteSkipped,
		StartedAt:    started,
	}
	m.journalStart(ctx, res)

	res.Bytes, res.Err = m.copyDataFile(filepath.Join(m.cfg.Dir, res.File))
	if res.Err == nil {
		pruned, err := m.Prune(ctx, started)
		if err != nil {
			m.logger.Warn("backup prune failed", "dir", m.cfg.Dir, "err", err)
		}
		res.Pruned = pruned
		res.RemoteStatus, res.SyncErr = m.sync(ctx)
	}
	res.FinishedAt = m.now()
	m.journalFinish(ctx, res)

	switch {
	case res.Err != nil:
		m.logger.Error("backup failed", "reason", reason, "err", res.Err)
	case res.SyncErr != nil:
		m.logger.Warn("backup remote sync failed", "file", res.File, "err", res.SyncErr)
	default:
		m.logger.Info("backup complete", "file", res.File, "bytes", res.Bytes, "pruned", res.Pruned, "remote", res.RemoteStatus)
	}
	return res
}

func (m *Manager) copyDataFile(dest string) (int64, error) {
	data, err := os.ReadFile(m.cfg.DataFile)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNoDataFile, m.cfg.DataFile)
	}
	if err != nil {
		return 0, fmt.Errorf("read data file: %w", err)
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(m.cfg.Dir, ".backup-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("write backup: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("write backup: %w", err)
	}
	return int64(len(data)), nil
}

// sync runs the configured command with {dir} replaced by the backup
// directory. An empty command skips the remote mirror.
func (m *Manager) sync(ctx context.Context) (string, error) {
	command := strings.TrimSpace(m.cfg.SyncCommand)
	if command == "" {
		return RemoteSkipped, nil
	}
	args := strings.Fields(strings.ReplaceAll(command, "{dir}", m.cfg.Dir))
	timeout := m.cfg.SyncTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := m.runCmd(ctx, args[0], args[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		detail := strings.TrimSpace(string(out))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		if detail != "" {
			return RemoteFailed, fmt.Errorf("%w: %s: %w: %s", ErrSyncFailed, args[0], err, detail)
		}
		return RemoteFailed, fmt.Errorf("%w: %s: %w", ErrSyncFailed, args[0], err)
	}
	return RemoteOK, nil
}

// Prune removes backup files older than the retention window and the
// journal rows that describe them.
func (m *Manager) Prune(ctx context.Context, now time.Time) (int, error) {
	if m.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-m.cfg.Retention)
	files, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	var errs []error
	for _, f := range files {
		if !f.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.Dir, f.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		pruned++
	}
	if m.journal != nil {
		if _, err := m.journal.PruneRuns(ctx, cutoff); err != nil {
			errs = append(errs, fmt.Errorf("prune journal: %w", err))
		}
	}
	return pruned, errors.Join(errs...)
}

func (m *Manager) journalStart(ctx context.Context, res Result) {
	if m.journal == nil {
		return
	}
	run := storage.BackupRun{ID: res.RunID, File: res.File, Reason: res.Reason, Status: storage.RunRunning, StartedAt: res.StartedAt}
	if err := m.journal.StartRun(ctx, run); err != nil {
		m.logger.Warn("could not journal backup start", "err", err)
	}
}

func (m *Manager) journalFinish(ctx context.Context, res Result) {
	if m.journal == nil {
		return
	}
	finished := res.FinishedAt
	run := storage.BackupRun{
		ID:           res.RunID,
		File:         res.File,
		Status:       storage.RunOK,
		RemoteStatus: res.RemoteStatus,
		Bytes:        res.Bytes,
		FinishedAt:   &finished,
	}
	switch {
	case res.Err != nil:
		run.Status = storage.RunFailed
		run.Error = res.Err.Error()
	case res.SyncErr != nil:
		run.Error = res.SyncErr.Error()
	}
	if err := m.journal.FinishRun(ctx, run); err != nil {
		m.logger.Warn("could not journal backup result", "err", err)
	}
}

// FileName returns the backup file name for t in local time.
func FileName(t time.Time) string {
	return filePrefix + t.Local().Format(nameLayout) + fileSuffix
}

// ParseFileName extracts the creation time encoded in a backup file name.
func ParseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.ParseInLocation(nameLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// File describes one backup on disk, with the latest journal entry for it
// when one exists.
type File struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
	Modified     time.Time `json:"modified"`
	Status       string    `json:"status,omitempty"`
	RemoteStatus string    `json:"remoteStatus,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// List returns backup files, newest first. A missing directory yields an
// empty list.
func (m *Manager) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	out := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Name: e.Name(), Size: info.Size(), CreatedAt: created, Modified: info.ModTime()})
	}
	slices.SortFunc(out, func(a, b File) int { return strings.Compare(b.Name, a.Name) })

	if m.journal != nil {
		runs, err := m.journal.ListRuns(ctx, storage.RunListFilter{Limit: 1000})
		if err != nil {
			m.logger.Warn("could not read backup journal", "err", err)
			return out, nil
		}
		latest := make(map[string]storage.BackupRun, len(runs))
		for _, run := range runs {
			if _, seen := latest[run.File]; !seen {
				latest[run.File] = run
			}
		}
		for i := range out {
			if run, ok := latest[out[i].Name]; ok {
				out[i].Status = string(run.Status)
				out[i].RemoteStatus = run.RemoteStatus
				out[i].Error = run.Error
			}
		}
	}
	return out, nil
}
