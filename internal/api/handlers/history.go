package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func limitParam(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return limit
}

// ListNotifications 获取最近的通知
func (h *Handler) ListNotifications(c *gin.Context) {
	if h.notifications == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is not enabled"})
		return
	}

	notifications, err := h.notifications.ListRecent(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

// ListConnectivity 获取地点连接状态变化历史
func (h *Handler) ListConnectivity(c *gin.Context) {
	if h.connectivity == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is not enabled"})
		return
	}

	records, err := h.connectivity.ListByLocation(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		h.logger.Error("Failed to list connectivity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list connectivity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}
