package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/metrics"
	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/storage"
	"github.com/langchou/ringgazer/internal/webhook"
	"github.com/langchou/ringgazer/pkg/ws"
)

// dingHandlerTimeout 单次门铃处理（快照+上传+webhook）的超时
const dingHandlerTimeout = 60 * time.Second

// CameraNotification 路由器收到的通知
type CameraNotification struct {
	Camera       ring.Camera
	Notification *ring.PushNotification
	ReceivedAt   time.Time
}

// SnapshotSource 获取摄像头快照
type SnapshotSource interface {
	Snapshot(ctx context.Context, cameraID int64) ([]byte, error)
}

// SnapshotUploader 上传快照到对象存储
type SnapshotUploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// WebhookSender 发送 webhook
type WebhookSender interface {
	Send(ctx context.Context, event webhook.Event) error
}

// NotificationRecorder 记录通知历史
type NotificationRecorder interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Broadcaster 推送实时消息
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// Classify 按类别分类通知，返回类型和描述
func Classify(category string) (kind, description string) {
	switch category {
	case ring.CategoryMotion:
		return models.KindMotion, "Motion detected"
	case ring.CategoryDing:
		return models.KindDing, "Doorbell pressed"
	default:
		return models.KindOther, fmt.Sprintf("Video started (%s)", category)
	}
}

// Router 通知路由器
type Router struct {
	logger      *zap.Logger
	snapshots   SnapshotSource
	uploader    SnapshotUploader
	webhook     WebhookSender
	keys        *storage.KeyTable
	recorder    NotificationRecorder
	broadcaster Broadcaster
	now         func() time.Time

	wg sync.WaitGroup
}

// NewRouter 创建路由器
func NewRouter(
	logger *zap.Logger,
	snapshots SnapshotSource,
	uploader SnapshotUploader,
	sender WebhookSender,
	keys *storage.KeyTable,
) *Router {
	return &Router{
		logger:    logger,
		snapshots: snapshots,
		uploader:  uploader,
		webhook:   sender,
		keys:      keys,
		now:       time.Now,
	}
}

// SetRecorder 设置通知历史记录器（可选）
func (r *Router) SetRecorder(recorder NotificationRecorder) {
	r.recorder = recorder
}

// SetBroadcaster 设置实时推送（可选）
func (r *Router) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// Run 消费通知，每条通知在独立的 goroutine 中处理
// ctx 取消或 in 关闭后等待处理中的通知完成
func (r *Router) Run(ctx context.Context, in <-chan CameraNotification) {
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-in:
			if !ok {
				return
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.Handle(ctx, n)
			}()
		}
	}
}

// Handle 处理单条通知，错误只记录不返回
func (r *Router) Handle(ctx context.Context, n CameraNotification) (record *models.Notification) {
	receivedAt := n.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	record = &models.Notification{
		CameraID:   n.Camera.ID,
		CameraName: n.Camera.Name(),
		ReceivedAt: receivedAt,
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Failed to upload/send snapshot",
				zap.String("camera", record.CameraName),
				zap.Any("panic", p))
			msg := fmt.Sprintf("panic: %v", p)
			record.Error = &msg
		}
		r.finish(ctx, record)
	}()

	if n.Notification == nil {
		r.logger.Warn("Notification without payload dropped", zap.String("camera", record.CameraName))
		msg := "empty notification"
		record.Error = &msg
		return record
	}

	category := n.Notification.Category()
	kind, description := Classify(category)
	record.Kind = kind
	record.Category = category
	record.DingID = n.Notification.DingID()
	record.Description = description

	r.logger.Info(description,
		zap.String("camera", record.CameraName),
		zap.String("ding_id", record.DingID),
		zap.Time("received_at", receivedAt))

	metrics.NotificationsTotal.WithLabelValues(kind).Inc()

	if kind != models.KindDing {
		return record
	}

	// 处理中的门铃在关闭时仍然完成
	dingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dingHandlerTimeout)
	defer cancel()

	if err := r.handleDing(dingCtx, n.Camera, record); err != nil {
		r.logger.Error("Failed to upload/send snapshot",
			zap.String("camera", record.CameraName),
			zap.String("ding_id", record.DingID),
			zap.Error(err))
		msg := err.Error()
		record.Error = &msg
	}

	return record
}

// handleDing 快照 → 上传 → webhook
func (r *Router) handleDing(ctx context.Context, camera ring.Camera, record *models.Notification) error {
	image, err := r.snapshots.Snapshot(ctx, camera.ID)
	if err != nil {
		metrics.SnapshotUploadsTotal.WithLabelValues(metrics.ResultSnapshotError).Inc()
		return fmt.Errorf("get snapshot: %w", err)
	}

	key, fallback := r.keys.KeyFor(camera.Name())
	if fallback {
		r.logger.Warn("No snapshot key configured for camera, using default key",
			zap.String("camera", camera.Name()),
			zap.String("key", key))
	}
	record.SnapshotKey = &key

	location, err := r.uploader.Upload(ctx, key, image)
	if err != nil {
		metrics.SnapshotUploadsTotal.WithLabelValues(metrics.ResultUploadError).Inc()
		return fmt.Errorf("upload snapshot: %w", err)
	}
	metrics.SnapshotUploadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	record.SnapshotURL = &location

	r.logger.Info("Snapshot uploaded",
		zap.String("camera", camera.Name()),
		zap.String("location", location))

	if err := r.webhook.Send(ctx, webhook.NewDoorbellEvent(camera.Name(), r.now())); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("send webhook: %w", err)
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	record.WebhookSent = true

	r.logger.Info("Webhook sent", zap.String("camera", camera.Name()))
	return nil
}

// finish 记录历史并推送
func (r *Router) finish(ctx context.Context, record *models.Notification) {
	if r.recorder != nil {
		if err := r.recorder.Create(context.WithoutCancel(ctx), record); err != nil {
			r.logger.Warn("Failed to record notification", zap.Error(err))
		}
	}
	if r.broadcaster != nil {
		r.broadcaster.BroadcastMessage(ws.MsgTypeNotification, record)
	}
}
