package ring

import (
	"strconv"
	"time"
)

// 推送通知类别
const (
	CategoryMotion = "com.ring.push.HANDLE_NEW_motion"
	CategoryDing   = "com.ring.push.HANDLE_NEW_DING"

	categoryPrefix = "com.ring.push.HANDLE_NEW_"
)

// 活跃事件 kind
const (
	DingKindDing     = "ding"
	DingKindMotion   = "motion"
	DingKindOnDemand = "on_demand"
)

// Location 地点
type Location struct {
	ID   string `json:"location_id"`
	Name string `json:"name"`
}

type locationsResponse struct {
	UserLocations []Location `json:"user_locations"`
}

// Camera 摄像头/门铃设备
type Camera struct {
	ID          int64  `json:"id"`
	Description string `json:"description"` // 显示名称
	Kind        string `json:"kind"`
	LocationID  string `json:"location_id"`
	DeviceID    string `json:"device_id,omitempty"`
	IsDoorbell  bool   `json:"-"`
}

// Name 摄像头名称
func (c Camera) Name() string {
	return c.Description
}

type devicesResponse struct {
	Doorbots           []Camera `json:"doorbots"`
	AuthorizedDoorbots []Camera `json:"authorized_doorbots"`
	StickupCams        []Camera `json:"stickup_cams"`
}

// ActiveDing dings/active 接口返回的活跃事件
type ActiveDing struct {
	ID                 int64   `json:"id"`
	IDStr              string  `json:"id_str"`
	State              string  `json:"state"`
	DoorbotID          int64   `json:"doorbot_id"`
	DoorbotDescription string  `json:"doorbot_description"`
	DeviceKind         string  `json:"device_kind"`
	Motion             bool    `json:"motion"`
	Kind               string  `json:"kind"`
	ExpiresIn          int     `json:"expires_in"`
	Now                float64 `json:"now"` // 秒级 Unix 时间戳
}

// DingID 字符串形式的事件 ID
func (d ActiveDing) DingID() string {
	if d.IDStr != "" {
		return d.IDStr
	}
	return strconv.FormatInt(d.ID, 10)
}

// Category 推送类别
func (d ActiveDing) Category() string {
	switch d.Kind {
	case DingKindDing:
		return CategoryDing
	case DingKindMotion:
		return CategoryMotion
	default:
		return categoryPrefix + d.Kind
	}
}

// ToNotification 转换为推送通知
func (d ActiveDing) ToNotification() *PushNotification {
	createdAt := time.Now()
	if d.Now > 0 {
		sec := int64(d.Now)
		createdAt = time.Unix(sec, int64((d.Now-float64(sec))*float64(time.Second)))
	}

	n := &PushNotification{}
	n.AndroidConfig.Category = d.Category()
	n.Data.Event.Ding = DingInfo{
		ID:        d.DingID(),
		DoorbotID: d.DoorbotID,
		CreatedAt: createdAt,
	}
	return n
}

// PushNotification 摄像头推送通知
type PushNotification struct {
	AndroidConfig struct {
		Category string `json:"category"`
	} `json:"android_config"`
	Data struct {
		Event struct {
			Ding DingInfo `json:"ding"`
		} `json:"event"`
	} `json:"data"`
}

// DingInfo 事件信息
type DingInfo struct {
	ID        string    `json:"id"`
	DoorbotID int64     `json:"doorbot_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Category 推送类别
func (n *PushNotification) Category() string {
	return n.AndroidConfig.Category
}

// DingID 事件 ID
func (n *PushNotification) DingID() string {
	return n.Data.Event.Ding.ID
}

// Ticket 地点实时连接票据
type Ticket struct {
	Host   string        `json:"host"`
	Ticket string        `json:"ticket"`
	Assets []TicketAsset `json:"assets"`
}

// TicketAsset 地点下的基站/网关
type TicketAsset struct {
	UUID   string `json:"uuid"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// TokenRotation 刷新令牌轮换事件
type TokenRotation struct {
	NewRefreshToken string
	OldRefreshToken string
}
