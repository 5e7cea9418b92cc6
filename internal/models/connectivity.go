package models

import "time"

// Connectivity 地点连接状态变化记录
type Connectivity struct {
	ID           int64     `json:"id" db:"id"`
	LocationID   string    `json:"location_id" db:"location_id"`
	LocationName string    `json:"location_name" db:"location_name"`
	Connected    bool      `json:"connected" db:"connected"`
	At           time.Time `json:"at" db:"at"`
}
