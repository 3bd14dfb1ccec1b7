package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

func NewSQLiteJournal(db *sql.DB) (*SQLiteJournal, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// OpenJournal opens the journal database at path, creating the parent
// directory and applying migrations.
func OpenJournal(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	journal, err := NewSQLiteJournal(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) StartRun(ctx context.Context, in BackupRun) error {
	if in.Status == "" {
		in.Status = RunRunning
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO backup_runs (id, file, reason, status, remote_status, error, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.File, in.Reason, string(in.Status), in.RemoteStatus, in.Error, in.Bytes,
		mustTime(in.StartedAt), nullTime(in.FinishedAt),
	)
	return err
}

func (j *SQLiteJournal) FinishRun(ctx context.Context, in BackupRun) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE backup_runs
		SET file = ?, status = ?, remote_status = ?, error = ?, bytes = ?, finished_at = ?
		WHERE id = ?`,
		in.File, string(in.Status), in.RemoteStatus, in.Error, in.Bytes, nullTime(in.FinishedAt), in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (j *SQLiteJournal) GetRun(ctx context.Context, id string) (BackupRun, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, file, reason, status, remote_status, error, bytes, started_at, finished_at
		FROM backup_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BackupRun{}, ErrNotFound
		}
		return BackupRun{}, err
	}
	return run, nil
}

func (j *SQLiteJournal) ListRuns(ctx context.Context, filter RunListFilter) ([]BackupRun, error) {
	query := `SELECT id, file, reason, status, remote_status, error, bytes, started_at, finished_at FROM backup_runs`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.File != "" {
		clauses = append(clauses, "file = ?")
		args = append(args, filter.File)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY started_at DESC, id DESC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BackupRun, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PruneRuns deletes runs started before the cutoff.
func (j *SQLiteJournal) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM backup_runs WHERE started_at < ?`, mustTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (j *SQLiteJournal) RecordRestore(ctx context.Context, in RestoreRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO restores (id, file, folders, reminders, restored_at)
		VALUES (?, ?, ?, ?, ?)`,
		in.ID, in.File, in.Folders, in.Reminders, mustTime(in.RestoredAt),
	)
	return err
}

func (j *SQLiteJournal) ListRestores(ctx context.Context, limit int) ([]RestoreRecord, error) {
	query := `SELECT id, file, folders, reminders, restored_at FROM restores ORDER BY restored_at DESC, id DESC`
	args := make([]any, 0, 1)
	query += applyPagination(&args, limit, 0)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RestoreRecord, 0)
	for rows.Next() {
		var rec RestoreRecord
		var restored string
		if err := rows.Scan(&rec.ID, &rec.File, &rec.Folders, &rec.Reminders, &restored); err != nil {
			return nil, err
		}
		restoredAt, err := parseRequiredTime(restored)
		if err != nil {
			return nil, err
		}
		rec.RestoredAt = restoredAt
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	} else if offset > 0 {
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (BackupRun, error) {
	var out BackupRun
	var status string
	var started string
	var finished sql.NullString
	if err := s.Scan(&out.ID, &out.File, &out.Reason, &status, &out.RemoteStatus, &out.Error, &out.Bytes, &started, &finished); err != nil {
		return BackupRun{}, err
	}
	startedAt, err := parseRequiredTime(started)
	if err != nil {
		return BackupRun{}, err
	}
	finishedAt, err := parseNullableTime(finished)
	if err != nil {
		return BackupRun{}, err
	}
	out.Status = RunStatus(status)
	out.StartedAt = startedAt
	out.FinishedAt = finishedAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
