// Package sqlite provides the SQLite-backed task store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trainhub/internal/apperrors"
	"trainhub/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_tasks (
	id             TEXT PRIMARY KEY,
	config         TEXT NOT NULL,
	status         TEXT NOT NULL,
	queue_handle   TEXT,
	current_step   INTEGER NOT NULL DEFAULT 0,
	total_steps    INTEGER NOT NULL,
	current_loss   REAL,
	current_metric REAL,
	result_path    TEXT,
	error_message  TEXT,
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_training_tasks_status ON training_tasks(status);
CREATE INDEX IF NOT EXISTS idx_training_tasks_created_at ON training_tasks(created_at);
`

// Store is the SQLite task store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the task database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; readers never block writers under WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ready verifies the database is reachable.
func (s *Store) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return apperrors.Internal("sqlite.createTask", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO training_tasks
	(id, config, status, queue_handle, current_step, total_steps, current_loss,
	 current_metric, result_path, error_message, created_at, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(cfg), string(t.Status), nullStr(t.QueueHandle),
		t.CurrentStep, t.TotalSteps, t.CurrentLoss, t.CurrentMetric,
		nullStr(t.ResultPath), nullStr(t.ErrorMessage),
		t.CreatedAt.UTC().Format(time.RFC3339Nano), nullTime(t.StartedAt), nullTime(t.CompletedAt))
	if err != nil {
		return apperrors.Internal("sqlite.createTask", err)
	}
	return nil
}

// GetTask returns the task or a not-found error.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, config, status, queue_handle, current_step, total_steps, current_loss,
       current_metric, result_path, error_message, created_at, started_at, completed_at
FROM training_tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("task", id)
		}
		return nil, apperrors.Internal("sqlite.getTask", err)
	}
	return t, nil
}

// UpdateTask applies a partial field update to an existing row.
func (s *Store) UpdateTask(ctx context.Context, id string, upd task.Update) error {
	set := []string{}
	args := []any{}

	addSet := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if upd.Status != nil {
		addSet("status", string(*upd.Status))
	}
	if upd.QueueHandle != nil {
		addSet("queue_handle", *upd.QueueHandle)
	}
	if upd.CurrentStep != nil {
		addSet("current_step", *upd.CurrentStep)
	}
	if upd.CurrentLoss != nil {
		addSet("current_loss", *upd.CurrentLoss)
	}
	if upd.CurrentMetric != nil {
		addSet("current_metric", *upd.CurrentMetric)
	}
	if upd.ResultPath != nil {
		addSet("result_path", *upd.ResultPath)
	}
	if upd.ErrorMessage != nil {
		addSet("error_message", *upd.ErrorMessage)
	}
	if upd.StartedAt != nil {
		addSet("started_at", upd.StartedAt.UTC().Format(time.RFC3339Nano))
	}
	if upd.CompletedAt != nil {
		addSet("completed_at", upd.CompletedAt.UTC().Format(time.RFC3339Nano))
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE training_tasks SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return apperrors.Internal("sqlite.updateTask", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Internal("sqlite.updateTask", err)
	}
	if n == 0 {
		return apperrors.NotFound("task", id)
	}
	return nil
}

// ListTasks returns tasks newest-first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, filter task.ListFilter) ([]*task.Task, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT id, config, status, queue_handle, current_step, total_steps, current_loss,
       current_metric, result_path, error_message, created_at, started_at, completed_at
FROM training_tasks WHERE 1=1`)
	args := []any{}
	if filter.Status != "" {
		query.WriteString(" AND status = ?")
		args = append(args, string(filter.Status))
	}
	query.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, apperrors.Internal("sqlite.listTasks", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.Internal("sqlite.listTasks", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("sqlite.listTasks", err)
	}
	return out, nil
}

// CountByStatus returns the number of tasks in each state.
func (s *Store) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM training_tasks GROUP BY status")
	if err != nil {
		return nil, apperrors.Internal("sqlite.countByStatus", err)
	}
	defer rows.Close()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Internal("sqlite.countByStatus", err)
		}
		counts[task.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("sqlite.countByStatus", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*task.Task, error) {
	var t task.Task
	var cfg, status, createdAt string
	var queueHandle, resultPath, errorMessage, startedAt, completedAt sql.NullString
	var currentLoss, currentMetric sql.NullFloat64

	if err := r.Scan(&t.ID, &cfg, &status, &queueHandle, &t.CurrentStep, &t.TotalSteps,
		&currentLoss, &currentMetric, &resultPath, &errorMessage,
		&createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cfg), &t.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	t.Status = task.Status(status)
	t.QueueHandle = queueHandle.String
	t.ResultPath = resultPath.String
	t.ErrorMessage = errorMessage.String
	if currentLoss.Valid {
		v := currentLoss.Float64
		t.CurrentLoss = &v
	}
	if currentMetric.Valid {
		v := currentMetric.Float64
		t.CurrentMetric = &v
	}

	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if startedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		t.CompletedAt = &ts
	}
	return &t, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Verify Store implements task.Store
var _ task.Store = (*Store)(nil)
