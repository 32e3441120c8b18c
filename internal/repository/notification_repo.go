package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choriad/backend/internal/models"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// CreateIfAbsent inserts a notification row, ignoring duplicates. Callers use
// deterministic ids so that an at-least-once delivery of the same outbox job
// cannot produce two rows.
func (r *NotificationRepo) CreateIfAbsent(ctx context.Context, n *models.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data)
	return err
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

// MarkRead flips the read flag for a single notification owned by the user.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
