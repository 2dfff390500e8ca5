package postgres

import (
	"context"

	"github.com/nadmax/bordo/internal/repository/models"
)

func (r *Repository) AddFriendship(ctx context.Context, f *models.Friendship) error {
	query := `
		INSERT INTO friendships (id, user_id, friend_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, f.ID, f.UserID, f.FriendID, f.CreatedAt)
	return conflict(err)
}

func (r *Repository) FriendshipExists(ctx context.Context, userID, friendID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2
		)
	`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, userID, friendID).Scan(&exists)

	return exists, err
}

func (r *Repository) ListFriendProgress(ctx context.Context, userID string) ([]models.FriendProgress, error) {
	query := `
		SELECT
			u.id, u.name, u.email,
			COUNT(t.id) AS total_tasks,
			COUNT(t.id) FILTER (WHERE t.is_completed) AS completed_tasks
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		LEFT JOIN tasks t ON t.user_id = u.id
		WHERE f.user_id = $1
		GROUP BY u.id, u.name, u.email
		ORDER BY u.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	progress := []models.FriendProgress{}
	for rows.Next() {
		var p models.FriendProgress
		if err := rows.Scan(
			&p.FriendID,
			&p.Name,
			&p.Email,
			&p.TotalTasks,
			&p.CompletedTasks,
		); err != nil {
			return nil, err
		}

		progress = append(progress, p)
	}

	return progress, rows.Err()
}
