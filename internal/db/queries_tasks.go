package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusAll       = "all"
)

type Task struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// TaskUpdate carries the fields to change; nil fields are left alone.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

const taskColumns = `id, user_id, title, COALESCE(description,''), status,
	created_at, updated_at, COALESCE(completed_at,'')`

// CreateTask creates a pending task for the user and returns it.
func (d *DB) CreateTask(ctx context.Context, userID, title, description string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	row := d.conn.QueryRowContext(ctx,
		"INSERT INTO tasks (user_id, title, description) VALUES (?, ?, ?) RETURNING "+taskColumns,
		userID, title, nullStr(description),
	)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// ListTasks returns the user's tasks matching status ("all", "pending", "completed"), oldest first.
func (d *DB) ListTasks(ctx context.Context, userID, status string) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ?"
	args := []any{userID}
	switch status {
	case "", StatusAll:
	case StatusPending, StatusCompleted:
		query += " AND status = ?"
		args = append(args, status)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	query += " ORDER BY id"

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// GetTask returns one task, or ErrNotFound when it does not exist for this user.
func (d *DB) GetTask(ctx context.Context, userID string, id int64) (*Task, error) {
	row := d.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// CompleteTask marks a task as completed. Completing an already completed task is a no-op.
func (d *DB) CompleteTask(ctx context.Context, userID string, id int64) (*Task, error) {
	_, err := d.conn.ExecContext(ctx,
		"UPDATE tasks SET status = 'completed', completed_at = "+nowExpr+", updated_at = "+nowExpr+
			" WHERE id = ? AND user_id = ? AND status != 'completed'",
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	// Zero rows affected means missing or already completed; GetTask tells them apart.
	return d.GetTask(ctx, userID, id)
}

// UpdateTask applies the non-nil fields of u and returns the updated task.
func (d *DB) UpdateTask(ctx context.Context, userID string, id int64, u TaskUpdate) (*Task, error) {
	fields := make(map[string]any)
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		fields["title"] = title
	}
	if u.Description != nil {
		fields["description"] = nullStr(*u.Description)
	}
	complete := false
	if u.Status != nil {
		switch *u.Status {
		case StatusPending:
			fields["status"] = StatusPending
			fields["completed_at"] = nil
		case StatusCompleted:
			complete = true
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
		}
	}
	if len(fields) > 0 {
		if err := d.updateRow(ctx, "tasks", userID, id, fields); err != nil {
			return nil, err
		}
	}
	if complete {
		return d.CompleteTask(ctx, userID, id)
	}
	return d.GetTask(ctx, userID, id)
}

// DeleteTask permanently removes a task.
func (d *DB) DeleteTask(ctx context.Context, userID string, id int64) error {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*Task, error) {
	var t Task
	if err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
