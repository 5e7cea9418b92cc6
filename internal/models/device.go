package models

// Location 地点
type Location struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // pending, connected, disconnected
}

// Camera 摄像头
type Camera struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	LocationID  string `json:"location_id"`
	IsDoorbell  bool   `json:"is_doorbell"`
	SnapshotKey string `json:"snapshot_key"`
}
