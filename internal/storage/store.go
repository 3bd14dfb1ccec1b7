// Package storage persists the repository as a single JSON document and
// keeps a SQLite journal of backup and restore activity.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

var (
	ErrBackupNotFound  = errors.New("storage: backup not found")
	ErrCorruptDocument = errors.New("storage: corrupt document")
)

// BackupTrigger receives a request after every successful save. It must not
// block.
type BackupTrigger interface {
	Trigger(reason string)
}

type StoreOption func(*Store)

func WithBackupTrigger(t BackupTrigger) StoreOption {
	return func(s *Store) { s.backups = t }
}

func WithJournal(j Journal) StoreOption {
	return func(s *Store) { s.journal = j }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

type Store struct {
	path      string
	backupDir string
	repo      *repository.Repository
	logger    *log.Logger
	backups   BackupTrigger
	journal   Journal
	now       func() time.Time

	mu        sync.Mutex
	lastSaved time.Time
	savedGen  uint64
}

func NewStore(path, backupDir string, repo *repository.Repository, logger *log.Logger, opts ...StoreOption) *Store {
	s := &Store{
		path:      path,
		backupDir: backupDir,
		repo:      repo,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string      { return s.path }
func (s *Store) BackupDir() string { return s.backupDir }

// LastSaved reports when the data file was last written, or the lastSaved
// value of the loaded document.
func (s *Store) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Load reads the data file into the repository. A missing file is not an
// error. On a read or parse failure the repository is left empty and the
// error is returned for logging. System folders exist afterwards either way.
func (s *Store) Load() error {
	defer s.repo.EnsureSystemFolders()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no data file yet, starting empty", "file", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	doc, err := DecodeDocument(b)
	if err != nil {
		return err
	}
	snap := doc.Snapshot()
	for _, rem := range snap.Reminders {
		if !rem.Recurring.IsValid() {
			s.logger.Warn("dropping unknown recurrence", "reminder", rem.ID, "recurring", string(rem.Recurring))
		}
	}
	s.repo.Replace(snap)

	s.mu.Lock()
	s.lastSaved = doc.LastSaved.Time
	s.savedGen = s.repo.Generation()
	s.mu.Unlock()

	folders, reminders := s.repo.Counts()
	s.logger.Info("loaded data file", "file", s.path, "folders", folders, "reminders", reminders)
	return nil
}

// Save writes the whole repository to the data file and then asks for a
// backup. The in-memory state stays authoritative when the write fails.
func (s *Store) Save() error {
	return s.save("save")
}

// SaveIfChanged saves only when the repository changed since the last
// successful save.
func (s *Store) SaveIfChanged() (bool, error) {
	s.mu.Lock()
	unchanged := s.savedGen == s.repo.Generation()
	s.mu.Unlock()
	if unchanged {
		return false, nil
	}
	return true, s.save("autosave")
}

func (s *Store) save(reason string) error {
	s.mu.Lock()
	gen := s.repo.Generation()
	snap := s.repo.Snapshot()
	now := s.now()
	b, err := EncodeDocument(NewDocument(snap, now))
	if err == nil {
		err = writeFileAtomic(s.path, b)
	}
	if err == nil {
		s.lastSaved = model.At(now).Time
		s.savedGen = gen
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("save data file: %w", err)
	}
	s.logger.Debug("saved data file", "file", s.path, "bytes", len(b), "reason", reason)
	if s.backups != nil {
		s.backups.Trigger(reason)
	}
	return nil
}

// Restore replaces the repository with the contents of a backup file and
// persists the result. Nothing changes unless the backup exists, passes
// schema validation and parses.
func (s *Store) Restore(ctx context.Context, name string) (repository.Snapshot, error) {
	path, err := s.backupPath(name)
	if err != nil {
		return repository.Snapshot{}, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return repository.Snapshot{}, fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("read backup: %w", err)
	}
	if err := ValidateDocument(b); err != nil {
		return repository.Snapshot{}, err
	}
	doc, err := DecodeDocument(b)
	if err != nil {
		return repository.Snapshot{}, err
	}
	snap := doc.Snapshot()
	s.repo.Replace(snap)
	s.logger.Info("restored backup", "file", name, "folders", len(snap.Folders), "reminders", len(snap.Reminders))

	if s.journal != nil {
		rec := RestoreRecord{
			ID:         model.NewID(),
			File:       name,
			Folders:    len(snap.Folders),
			Reminders:  len(snap.Reminders),
			RestoredAt: s.now(),
		}
		if err := s.journal.RecordRestore(ctx, rec); err != nil {
			s.logger.Warn("could not journal restore", "file", name, "err", err)
		}
	}
	if err := s.save("restore"); err != nil {
		s.logger.Error("could not persist restored state", "file", s.path, "err", err)
	}
	return s.repo.Snapshot(), nil
}

// backupPath resolves a bare backup file name inside the backup directory.
func (s *Store) backupPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrBackupNotFound, name)
	}
	return filepath.Join(s.backupDir, name), nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over the destination.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
