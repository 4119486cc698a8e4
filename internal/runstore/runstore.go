// Package runstore persists orchestration runs and their message logs in
// SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/joss/elf/internal/domain"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored orchestration run.
type Run struct {
	ID        string        `json:"id"`
	Objective string        `json:"objective"`
	Language  string        `json:"language"`
	Status    string        `json:"status"`
	Output    string        `json:"output,omitempty"`
	Tasks     []domain.Task `json:"tasks"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

const StatusRunning = "running"

type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		tasks_json TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		task_id INTEGER NOT NULL DEFAULT 0,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		open INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create starts a run record with a fresh ULID.
func (s *Store) Create(ctx context.Context, objective, language string) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:        ulid.Make().String(),
		Objective: objective,
		Language:  language,
		Status:    StatusRunning,
		Tasks:     []domain.Task{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, objective, language, status, tasks_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, run.ID, run.Objective, run.Language, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// SaveTasks replaces the stored task graph of a run.
func (s *Store) SaveTasks(ctx context.Context, id string, tasks []domain.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	return s.update(ctx, id, `UPDATE runs SET tasks_json = ?, updated_at = ? WHERE id = ?`, string(data), time.Now().UTC(), id)
}

// Finish records the final status and output of a run.
func (s *Store) Finish(ctx context.Context, id, status, output string) error {
	return s.update(ctx, id, `UPDATE runs SET status = ?, output = ?, updated_at = ? WHERE id = ?`, status, output, time.Now().UTC(), id)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Get loads a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, objective, language, status, output, tasks_json, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// List returns the most recently updated runs first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, objective, language, status, output, tasks_json, created_at, updated_at
		FROM runs ORDER BY updated_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var tasksJSON string
	if err := row.Scan(&run.ID, &run.Objective, &run.Language, &run.Status, &run.Output, &tasksJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tasksJSON), &run.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// AppendMessage stores m in the run's log. A message whose ID is already
// stored replaces the earlier version but keeps its position.
func (s *Store) AppendMessage(ctx context.Context, runID string, m domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, run_id, task_id, type, title, text, icon, open, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			icon = excluded.icon,
			open = excluded.open,
			timestamp = excluded.timestamp
	`, m.ID, runID, m.TaskID, string(m.Type), m.Title, m.Text, m.Icon, m.Open, m.Time)
	if err != nil {
		return fmt.Errorf("append message to run %s: %w", runID, err)
	}
	return nil
}

// Messages returns a run's log in first-emitted order.
func (s *Store) Messages(ctx context.Context, runID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, type, title, text, icon, open, timestamp
		FROM messages WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var typ string
		if err := rows.Scan(&m.ID, &m.TaskID, &typ, &m.Title, &m.Text, &m.Icon, &m.Open, &m.Time); err != nil {
			return nil, err
		}
		m.Type = domain.MessageType(typ)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Delete removes a run and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.update(ctx, id, `DELETE FROM runs WHERE id = ?`, id)
}

// Sink returns a message sink that appends to runID's log. Write failures
// go to onErr when set.
func (s *Store) Sink(ctx context.Context, runID string, onErr func(error)) domain.MessageSink {
	return func(m domain.Message) {
		if err := s.AppendMessage(context.WithoutCancel(ctx), runID, m); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
