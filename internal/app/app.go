// Package app wires configuration, persistence, background jobs and the
// HTTP server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/auth"
	"github.com/inaciog/reminders-app/internal/backup"
	"github.com/inaciog/reminders-app/internal/config"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/scheduler"
	"github.com/inaciog/reminders-app/internal/server"
	"github.com/inaciog/reminders-app/internal/storage"
)

const (
	JobAutosave   = "autosave"
	JobRecurrence = "recurrence"
	JobTags       = "tags"
	JobBackup     = "backup"
)

type Option func(*App)

// WithClock replaces time.Now everywhere the process reads the time.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithCommandRunner replaces the remote sync executor.
func WithCommandRunner(r backup.CommandRunner) Option {
	return func(a *App) { a.runner = r }
}

type App struct {
	cfg    config.Config
	logger *log.Logger
	now    func() time.Time
	runner backup.CommandRunner

	repo    *repository.Repository
	store   *storage.Store
	journal *storage.SQLiteJournal
	backups *backup.Manager
	engine  *scheduler.Engine
	server  *server.Server

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New loads the data file and builds every component. A data file that
// cannot be parsed is logged and the process starts with empty state.
func New(cfg config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.JournalFile != "" {
		journal, err := storage.OpenJournal(cfg.JournalFile)
		if err != nil {
			logger.Warn("backup journal unavailable", "file", cfg.JournalFile, "err", err)
		} else {
			a.journal = journal
		}
	}

	backupOpts := []backup.Option{backup.WithClock(a.now)}
	storeOpts := []storage.StoreOption{storage.WithStoreClock(a.now)}
	if a.journal != nil {
		backupOpts = append(backupOpts, backup.WithJournal(a.journal))
		storeOpts = append(storeOpts, storage.WithJournal(a.journal))
	}
	if a.runner != nil {
		backupOpts = append(backupOpts, backup.WithCommandRunner(a.runner))
	}

	a.repo = repository.New(repository.WithClock(a.now))
	a.backups = backup.New(backup.Config{
		DataFile:    cfg.DataFile,
		Dir:         cfg.BackupDir,
		Retention:   cfg.BackupRetention,
		SyncCommand: cfg.RemoteSyncCommand,
		SyncTimeout: cfg.RemoteSyncTimeout,
	}, logger.WithPrefix("backup"), backupOpts...)
	storeOpts = append(storeOpts, storage.WithBackupTrigger(a.backups))
	a.store = storage.NewStore(cfg.DataFile, cfg.BackupDir, a.repo, logger.WithPrefix("store"), storeOpts...)

	if err := a.store.Load(); err != nil {
		logger.Error("could not load data file, starting empty", "file", cfg.DataFile, "err", err)
	}
	a.repo.SetOnChange(a.persist)

	a.engine = scheduler.NewEngine(cfg.SchedulerBuffer, logger.WithPrefix("scheduler"))
	if err := a.addJobs(); err != nil {
		a.closeJournal()
		return nil, err
	}

	gate := auth.NewGate(auth.Config{
		Enabled:    cfg.Auth.Enabled,
		VerifyURL:  cfg.Auth.VerifyURL,
		LoginURL:   cfg.Auth.LoginURL,
		CookieName: cfg.Auth.CookieName,
		Timeout:    cfg.Auth.Timeout,
	}, logger.WithPrefix("auth"))
	a.server = server.New(server.Deps{
		Repo:            a.repo,
		Store:           a.store,
		Backups:         a.backups,
		Gate:            gate,
		AssistantSecret: cfg.Assistant.Secret,
		Logger:          logger.WithPrefix("http"),
		Now:             a.now,
	})
	return a, nil
}

// persist saves after every mutation. A restore already saved the state it
// installed.
func (a *App) persist(reason string) {
	if reason == "replace" {
		return
	}
	if err := a.store.Save(); err != nil {
		a.logger.Error("save after change failed", "reason", reason, "err", err)
	}
}

func (a *App) addJobs() error {
	jobs := []scheduler.Job{
		{
			Name:     JobAutosave,
			Interval: a.cfg.AutosaveInterval,
			Run: func(context.Context) error {
				_, err := a.store.SaveIfChanged()
				return err
			},
		},
		{
			Name:       JobRecurrence,
			Interval:   a.cfg.RecurrenceInterval,
			RunAtStart: true,
			Run: func(context.Context) error {
				if n := a.repo.SweepRecurring(a.now()); n > 0 {
					a.logger.Info("reopened recurring reminders", "count", n)
				}
				return nil
			},
		},
		{
			Name:     JobTags,
			Interval: a.cfg.TagRebuildInterval,
			Run: func(context.Context) error {
				a.repo.RebuildTags()
				return nil
			},
		},
		{
			Name:     JobBackup,
			Interval: a.cfg.BackupInterval,
			Run: func(ctx context.Context) error {
				return a.backups.Run(ctx, "scheduled").Err
			},
		},
	}
	for _, job := range jobs {
		if err := a.engine.Add(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name, err)
		}
	}
	return nil
}

func (a *App) Repository() *repository.Repository { return a.repo }
func (a *App) Store() *storage.Store                { return a.store }
func (a *App) Backups() *backup.Manager             { return a.backups }
func (a *App) Scheduler() *scheduler.Engine         { return a.engine }
func (a *App) Handler() http.Handler                { return a.server.Handler() }

// Addr is the bound listen address once Run has started listening.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Start launches the background jobs and the report drains without
// serving HTTP.
func (a *App) Start() {
	a.engine.Start()
	a.wg.Add(2)
	go a.drainReports()
	go a.drainBackups()
}

func (a *App) drainReports() {
	defer a.wg.Done()
	for rep := range a.engine.C() {
		if rep.Err != nil {
			a.logger.Error("background job failed", "job", rep.Job, "err", rep.Err, "duration", rep.Duration)
			continue
		}
		a.logger.Debug("background job finished", "job", rep.Job, "duration", rep.Duration)
	}
}

func (a *App) drainBackups() {
	defer a.wg.Done()
	for res := range a.backups.Results() {
		a.logger.Debug("backup finished", "reason", res.Reason, "file", res.File, "err", res.Err)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.listener = ln
	a.http = srv
	a.mu.Unlock()

	a.Start()
	a.logger.Info("listening", "addr", ln.Addr().String(), "data", a.cfg.DataFile, "auth", a.cfg.Auth.Enabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		a.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the scheduler, flushes one final save and then drains
// the HTTP server. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.engine.Stop()
		if saveErr := a.store.Save(); saveErr != nil {
			a.logger.Error("final save failed", "err", saveErr)
			err = saveErr
		}

		a.mu.Lock()
		srv := a.http
		a.mu.Unlock()
		if srv != nil {
			if shutErr := srv.Shutdown(ctx); shutErr != nil {
				a.logger.Warn("http shutdown", "err", shutErr)
				err = errors.Join(err, shutErr)
			}
		}

		a.backups.Close()
		a.wg.Wait()
		a.closeJournal()
		a.logger.Info("stopped")
	})
	return err
}

func (a *App) closeJournal() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("close backup journal", "err", err)
	}
}
