package gateway

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vexlio/drover/api/schemas"
)

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	prompt TEXT NOT NULL,
	max_steps INTEGER NOT NULL,
	status TEXT NOT NULL,
	result TEXT,
	error TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
`

// Store persists task history to a SQLite database so the dashboard keeps its
// task list across restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if necessary creates) the task history database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	// SQLite tolerates exactly one writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveTask inserts or updates one task row.
func (s *Store) SaveTask(task *schemas.Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks (id, prompt, max_steps, status, result, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		task.ID, task.Prompt, task.MaxSteps, string(task.Status),
		task.Result, task.Error,
		task.CreatedAt.UnixMilli(), unixMilliOrNil(task.StartedAt), unixMilliOrNil(task.FinishedAt))
	return err
}

// LoadTasks returns all persisted tasks in submission order.
func (s *Store) LoadTasks() ([]*schemas.Task, error) {
	rows, err := s.db.Query(`SELECT id, prompt, max_steps, status, result, error, created_at, started_at, finished_at
		FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*schemas.Task
	for rows.Next() {
		var (
			task      schemas.Task
			status    string
			result    sql.NullString
			errMsg    sql.NullString
			createdAt int64
			startedAt sql.NullInt64
			finished  sql.NullInt64
		)
		if err := rows.Scan(&task.ID, &task.Prompt, &task.MaxSteps, &status,
			&result, &errMsg, &createdAt, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		task.Status = schemas.TaskStatus(status)
		task.Result = result.String
		task.Error = errMsg.String
		task.CreatedAt = time.UnixMilli(createdAt).UTC()
		if startedAt.Valid {
			t := time.UnixMilli(startedAt.Int64).UTC()
			task.StartedAt = &t
		}
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			task.FinishedAt = &t
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func unixMilliOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
