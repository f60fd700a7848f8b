package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const entryColumns = "id, request_id, operation, target_id, project_id, chapter_id, task_id, status, message, attempts, created_at, updated_at, finished_at"

const defaultListLimit = 50

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("ledger entry not found")

// Begin inserts a new entry in the submitting state.
func (s *Store) Begin(ctx context.Context, entry Entry) (*Entry, error) {
	if strings.TrimSpace(entry.RequestID) == "" {
		return nil, errors.New("ledger entry requires a request id")
	}
	if strings.TrimSpace(entry.Operation) == "" {
		return nil, errors.New("ledger entry requires an operation")
	}
	timestamp := s.timestamp()
	res, err := s.exec(ctx,
		`INSERT INTO task_entries (
            request_id, operation, target_id, project_id, chapter_id, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.Operation,
		entry.TargetID,
		entry.ProjectID,
		entry.ChapterID,
		StatusSubmitting,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ledger entry id: %w", err)
	}
	return s.Get(ctx, id)
}

// AttachTask records the backend task id and moves the entry to polling.
func (s *Store) AttachTask(ctx context.Context, id int64, taskID string) error {
	return s.update(ctx, id,
		`UPDATE task_entries SET task_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		taskID, StatusPolling, s.timestamp(), id,
	)
}

// RecordAttempt stores the latest poll attempt number.
func (s *Store) RecordAttempt(ctx context.Context, id int64, attempt int) error {
	return s.update(ctx, id,
		`UPDATE task_entries SET attempts = ?, updated_at = ? WHERE id = ?`,
		attempt, s.timestamp(), id,
	)
}

// Finish stores the terminal status and message.
func (s *Store) Finish(ctx context.Context, id int64, status Status, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish ledger entry %d: %q is not a terminal status", id, status)
	}
	timestamp := s.timestamp()
	return s.update(ctx, id,
		`UPDATE task_entries SET status = ?, message = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
		status, strings.TrimSpace(message), timestamp, timestamp, id,
	)
}

func (s *Store) update(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update ledger entry %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update ledger entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM task_entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", id, err)
	}
	return entry, nil
}

// FindByTask returns the most recent entry for a backend task id.
func (s *Store) FindByTask(ctx context.Context, taskID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM task_entries WHERE task_id = ? ORDER BY id DESC LIMIT 1",
		strings.TrimSpace(taskID),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger entry by task: %w", err)
	}
	return entry, nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if chapter := strings.TrimSpace(filter.ChapterID); chapter != "" {
		clauses = append(clauses, "chapter_id = ?")
		args = append(args, chapter)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	query := "SELECT " + entryColumns + " FROM task_entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM task_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ReclaimStale marks open entries not updated within maxAge as abandoned and
// returns how many were changed.
func (s *Store) ReclaimStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.now().UTC()
	cutoff := now.Add(-maxAge).Format(time.RFC3339Nano)
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.exec(ctx,
		`UPDATE task_entries
            SET status = ?, message = ?, updated_at = ?, finished_at = ?
          WHERE status IN (?, ?) AND updated_at < ?`,
		StatusAbandoned, "process exited before the task resolved", timestamp, timestamp,
		StatusSubmitting, StatusPolling, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale ledger entries: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry       Entry
		status      string
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.Operation,
		&entry.TargetID,
		&entry.ProjectID,
		&entry.ChapterID,
		&entry.TaskID,
		&status,
		&entry.Message,
		&entry.Attempts,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	entry.Status = Status(status)
	entry.CreatedAt = parseTime(createdRaw)
	entry.UpdatedAt = parseTime(updatedRaw)
	entry.FinishedAt = parseTime(finishedRaw)
	return &entry, nil
}
