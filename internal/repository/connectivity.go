package repository

import (
	"context"
	"fmt"

	"github.com/langchou/ringgazer/internal/models"
)

// ConnectivityRepository 地点连接状态仓库
type ConnectivityRepository struct {
	db *DB
}

// NewConnectivityRepository 创建连接状态仓库
func NewConnectivityRepository(db *DB) *ConnectivityRepository {
	return &ConnectivityRepository{db: db}
}

// Create 记录一次状态变化
func (r *ConnectivityRepository) Create(ctx context.Context, c *models.Connectivity) error {
	query := `
		INSERT INTO ring_connectivity (location_id, location_name, connected, at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.Pool.QueryRow(ctx, query, c.LocationID, c.LocationName, c.Connected, c.At).Scan(&c.ID); err != nil {
		return fmt.Errorf("insert connectivity: %w", err)
	}
	return nil
}

// ListByLocation 获取地点最近的状态变化
func (r *ConnectivityRepository) ListByLocation(ctx context.Context, locationID string, limit int) ([]*models.Connectivity, error) {
	query := `
		SELECT id, location_id, location_name, connected, at
		FROM ring_connectivity
		WHERE location_id = $1
		ORDER BY at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query connectivity: %w", err)
	}
	defer rows.Close()

	var records []*models.Connectivity
	for rows.Next() {
		c := &models.Connectivity{}
		if err := rows.Scan(&c.ID, &c.LocationID, &c.LocationName, &c.Connected, &c.At); err != nil {
			return nil, fmt.Errorf("scan connectivity: %w", err)
		}
		records = append(records, c)
	}

	return records, rows.Err()
}
