package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateNotifications,
		migrationCreateConnectivity,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateNotifications = `
CREATE TABLE IF NOT EXISTS ring_notifications (
    id BIGSERIAL PRIMARY KEY,
    camera_id BIGINT NOT NULL,
    camera_name VARCHAR(255) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    category VARCHAR(255) NOT NULL,
    ding_id VARCHAR(64) NOT NULL,
    description VARCHAR(255) NOT NULL,
    snapshot_key VARCHAR(1024),
    snapshot_url TEXT,
    webhook_sent BOOLEAN NOT NULL DEFAULT FALSE,
    error TEXT,
    received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ring_notifications_received_at ON ring_notifications(received_at DESC);
CREATE INDEX IF NOT EXISTS idx_ring_notifications_camera ON ring_notifications(camera_id, received_at DESC);
`

const migrationCreateConnectivity = `
CREATE TABLE IF NOT EXISTS ring_connectivity (
    id BIGSERIAL PRIMARY KEY,
    location_id VARCHAR(64) NOT NULL,
    location_name VARCHAR(255) NOT NULL,
    connected BOOLEAN NOT NULL,
    at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ring_connectivity_location ON ring_connectivity(location_id, at DESC);
`
