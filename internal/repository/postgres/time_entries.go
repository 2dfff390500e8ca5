package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
)

const timeEntryColumns = `
	id, task_id, user_id, started_at, ended_at, duration_minutes`

func scanTimeEntry(s scanner) (*task.TimeEntry, error) {
	var e task.TimeEntry
	var endedAt sql.NullTime
	var durationMinutes sql.NullInt64

	if err := s.Scan(
		&e.ID,
		&e.TaskID,
		&e.UserID,
		&e.StartedAt,
		&endedAt,
		&durationMinutes,
	); err != nil {
		return nil, err
	}

	if endedAt.Valid {
		e.EndedAt = &endedAt.Time
	}
	if durationMinutes.Valid {
		d := int(durationMinutes.Int64)
		e.DurationMinutes = &d
	}

	return &e, nil
}

func (r *Repository) CreateTimeEntry(ctx context.Context, e *task.TimeEntry) error {
	query := `
		INSERT INTO time_entries (id, task_id, user_id, started_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, e.ID, e.TaskID, e.UserID, e.StartedAt)
	return err
}

// CloseTimeEntry only touches open entries; closing twice reports ErrNotFound.
func (r *Repository) CloseTimeEntry(ctx context.Context, entryID string, endedAt time.Time, durationMinutes int) error {
	query := `
		UPDATE time_entries
		SET ended_at = $1,
		    duration_minutes = $2
		WHERE id = $3 AND ended_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, endedAt, durationMinutes, entryID)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

func (r *Repository) GetOpenTimeEntry(ctx context.Context, taskID, userID string) (*task.TimeEntry, error) {
	query := `SELECT` + timeEntryColumns + `
		FROM time_entries
		WHERE task_id = $1 AND user_id = $2 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	e, err := scanTimeEntry(r.db.QueryRowContext(ctx, query, taskID, userID))
	if err != nil {
		return nil, notFound(err)
	}

	return e, nil
}

func (r *Repository) ListStaleOpenEntries(ctx context.Context, startedBefore time.Time) ([]task.TimeEntry, error) {
	query := `SELECT` + timeEntryColumns + `
		FROM time_entries
		WHERE ended_at IS NULL AND started_at < $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, startedBefore)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	entries := []task.TimeEntry{}
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

func (r *Repository) CountOpenEntries(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM time_entries WHERE ended_at IS NULL`).Scan(&count)

	return count, err
}

func (r *Repository) ListTimesheet(ctx context.Context, userID string, from, to time.Time) ([]models.TimesheetRow, error) {
	query := `
		SELECT
			te.id, te.task_id, t.title, te.started_at, te.ended_at,
			COALESCE(te.duration_minutes, 0)
		FROM time_entries te
		JOIN tasks t ON t.id = te.task_id
		WHERE te.user_id = $1
		  AND te.ended_at IS NOT NULL
		  AND te.started_at >= $2
		  AND te.started_at < $3
		ORDER BY te.started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var sheet []models.TimesheetRow
	for rows.Next() {
		var row models.TimesheetRow
		if err := rows.Scan(
			&row.EntryID,
			&row.TaskID,
			&row.TaskTitle,
			&row.StartedAt,
			&row.EndedAt,
			&row.DurationMinutes,
		); err != nil {
			return nil, err
		}

		sheet = append(sheet, row)
	}

	return sheet, rows.Err()
}
