package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nadmax/bordo/internal/task"
)

const taskColumns = `
	id, user_id, title, description, total_estimated_minutes,
	total_spent_minutes, is_completed, completed_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*task.Task, error) {
	var t task.Task
	var description sql.NullString
	var completedAt sql.NullTime

	if err := s.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&description,
		&t.TotalEstimatedMinutes,
		&t.TotalSpentMinutes,
		&t.IsCompleted,
		&completedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = &description.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}

	return &t, nil
}

func (r *Repository) CreateTask(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (
			id, user_id, title, description, total_estimated_minutes,
			total_spent_minutes, is_completed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var description any
	if t.Description != nil {
		description = *t.Description
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.UserID,
		t.Title,
		description,
		t.TotalEstimatedMinutes,
		t.TotalSpentMinutes,
		t.IsCompleted,
		t.CreatedAt,
		t.UpdatedAt,
	)

	return err
}

func (r *Repository) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE id = $1
	`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		return nil, notFound(err)
	}

	return t, nil
}

func (r *Repository) ListTasksByUser(ctx context.Context, userID string) ([]task.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	return r.queryTasks(ctx, query, userID)
}

func (r *Repository) ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]task.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND is_completed AND completed_at > $2
		ORDER BY completed_at DESC
	`

	return r.queryTasks(ctx, query, userID, since)
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]task.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, *t)
	}

	return tasks, rows.Err()
}

func (r *Repository) UpdateEstimate(ctx context.Context, taskID string, minutes int) error {
	query := `
		UPDATE tasks
		SET total_estimated_minutes = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	res, err := r.db.ExecContext(ctx, query, minutes, taskID)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

// AddSpentMinutes increments in SQL so concurrent stops never overwrite each other.
func (r *Repository) AddSpentMinutes(ctx context.Context, taskID string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("spent minutes must not be negative: %d", minutes)
	}

	query := `
		UPDATE tasks
		SET total_spent_minutes = total_spent_minutes + $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	res, err := r.db.ExecContext(ctx, query, minutes, taskID)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

// MarkCompleted keeps an existing completed_at so the timestamp is only set once.
func (r *Repository) MarkCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error) {
	query := `
		UPDATE tasks
		SET is_completed = TRUE,
		    completed_at = COALESCE(completed_at, $1),
		    updated_at = NOW()
		WHERE id = $2
		RETURNING` + taskColumns

	t, err := scanTask(r.db.QueryRowContext(ctx, query, at, taskID))
	if err != nil {
		return nil, notFound(err)
	}

	return t, nil
}
