package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/state"
	"github.com/langchou/ringgazer/pkg/ws"
)

// RingStatus Ring 服务状态
type RingStatus interface {
	Ready() bool
	Locations() []models.Location
	Cameras() []models.Camera
	LocationStates() map[string]*state.LocationState
}

// NotificationLister 通知历史
type NotificationLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.Notification, error)
}

// ConnectivityLister 连接状态历史
type ConnectivityLister interface {
	ListByLocation(ctx context.Context, locationID string, limit int) ([]*models.Connectivity, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger        *zap.Logger
	ring          RingStatus
	notifications NotificationLister
	connectivity  ConnectivityLister
	wsHub         *ws.Hub
	upgrader      websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, ring RingStatus, wsHub *ws.Hub) *Handler {
	return &Handler{
		logger: logger,
		ring:   ring,
		wsHub:  wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// SetHistory 设置事件历史（未配置数据库时为空）
func (h *Handler) SetHistory(notifications NotificationLister, connectivity ConnectivityLister) {
	h.notifications = notifications
	h.connectivity = connectivity
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 设备
		api.GET("/locations", h.ListLocations)
		api.GET("/locations/:id/state", h.GetLocationState)
		api.GET("/cameras", h.ListCameras)

		// 历史
		api.GET("/events", h.ListNotifications)
		api.GET("/locations/:id/connectivity", h.ListConnectivity)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	h.wsHub.Attach(conn)
}

// HealthCheck 健康检查，认证和设备发现完成前返回 503
func (h *Handler) HealthCheck(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if !h.ring.Ready() {
		status, code = "starting", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"ws_clients": h.wsHub.ClientCount(),
		"locations":  len(h.ring.Locations()),
		"cameras":    len(h.ring.Cameras()),
	})
}
