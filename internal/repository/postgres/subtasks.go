package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/nadmax/bordo/internal/task"
)

const subtaskColumns = `
	id, task_id, title, estimated_minutes, spent_minutes,
	is_completed, order_index, created_at`

func scanSubtask(s scanner) (*task.Subtask, error) {
	var st task.Subtask
	if err := s.Scan(
		&st.ID,
		&st.TaskID,
		&st.Title,
		&st.EstimatedMinutes,
		&st.SpentMinutes,
		&st.IsCompleted,
		&st.OrderIndex,
		&st.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &st, nil
}

// InsertSubtasks writes the whole batch in one transaction: either every row lands or none.
func (r *Repository) InsertSubtasks(ctx context.Context, subtasks []task.Subtask) ([]task.Subtask, error) {
	if len(subtasks) == 0 {
		return []task.Subtask{}, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to roll back subtask insert: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subtasks (
			id, task_id, title, estimated_minutes, spent_minutes,
			is_completed, order_index, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare subtask insert: %w", err)
	}

	defer func() {
		if err := stmt.Close(); err != nil {
			log.Printf("failed to close statement: %v", err)
		}
	}()

	inserted := make([]task.Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		if _, err := stmt.ExecContext(
			ctx,
			st.ID,
			st.TaskID,
			st.Title,
			st.EstimatedMinutes,
			st.SpentMinutes,
			st.IsCompleted,
			st.OrderIndex,
			st.CreatedAt,
		); err != nil {
			return nil, conflict(err)
		}

		inserted = append(inserted, st)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subtasks: %w", err)
	}

	return inserted, nil
}

func (r *Repository) ListSubtasks(ctx context.Context, taskID string) ([]task.Subtask, error) {
	query := `SELECT` + subtaskColumns + `
		FROM subtasks
		WHERE task_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	subtasks := []task.Subtask{}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}

		subtasks = append(subtasks, *st)
	}

	return subtasks, rows.Err()
}

func (r *Repository) GetSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error) {
	query := `SELECT` + subtaskColumns + `
		FROM subtasks
		WHERE id = $1
	`

	st, err := scanSubtask(r.db.QueryRowContext(ctx, query, subtaskID))
	if err != nil {
		return nil, notFound(err)
	}

	return st, nil
}

func (r *Repository) ToggleSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error) {
	query := `
		UPDATE subtasks
		SET is_completed = NOT is_completed
		WHERE id = $1
		RETURNING` + subtaskColumns

	st, err := scanSubtask(r.db.QueryRowContext(ctx, query, subtaskID))
	if err != nil {
		return nil, notFound(err)
	}

	return st, nil
}
