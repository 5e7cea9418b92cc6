package models

import "time"

// 通知类型
const (
	KindMotion = "motion"
	KindDing   = "ding"
	KindOther  = "other"
)

// Notification 摄像头通知记录
type Notification struct {
	ID          int64     `json:"id" db:"id"`
	CameraID    int64     `json:"camera_id" db:"camera_id"`
	CameraName  string    `json:"camera_name" db:"camera_name"`
	Kind        string    `json:"kind" db:"kind"` // motion, ding, other
	Category    string    `json:"category" db:"category"`
	DingID      string    `json:"ding_id" db:"ding_id"`
	Description string    `json:"description" db:"description"`
	SnapshotKey *string   `json:"snapshot_key,omitempty" db:"snapshot_key"`
	SnapshotURL *string   `json:"snapshot_url,omitempty" db:"snapshot_url"`
	WebhookSent bool      `json:"webhook_sent" db:"webhook_sent"`
	Error       *string   `json:"error,omitempty" db:"error"`
	ReceivedAt  time.Time `json:"received_at" db:"received_at"`
}
