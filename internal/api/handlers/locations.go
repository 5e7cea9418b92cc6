package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListLocations 获取地点及连接状态
func (h *Handler) ListLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.ring.Locations()})
}

// GetLocationState 获取地点连接状态详情
func (h *Handler) GetLocationState(c *gin.Context) {
	st, ok := h.ring.LocationStates()[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": st})
}

// ListCameras 获取摄像头列表
func (h *Handler) ListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.ring.Cameras()})
}
