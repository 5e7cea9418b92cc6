package repository

import (
	"context"
	"fmt"

	"github.com/langchou/ringgazer/internal/models"
)

// NotificationRepository 通知数据仓库
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 记录通知
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO ring_notifications (camera_id, camera_name, kind, category, ding_id, description,
			snapshot_key, snapshot_url, webhook_sent, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		n.CameraID,
		n.CameraName,
		n.Kind,
		n.Category,
		n.DingID,
		n.Description,
		n.SnapshotKey,
		n.SnapshotURL,
		n.WebhookSent,
		n.Error,
		n.ReceivedAt,
	).Scan(&n.ID)

	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListRecent 获取最近的通知
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, camera_id, camera_name, kind, category, ding_id, description,
			snapshot_key, snapshot_url, webhook_sent, error, received_at
		FROM ring_notifications
		ORDER BY received_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.CameraID,
			&n.CameraName,
			&n.Kind,
			&n.Category,
			&n.DingID,
			&n.Description,
			&n.SnapshotKey,
			&n.SnapshotURL,
			&n.WebhookSent,
			&n.Error,
			&n.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}
