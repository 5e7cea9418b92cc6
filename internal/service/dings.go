package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/metrics"
)

// DingSource 活跃事件来源
type DingSource interface {
	ActiveDings(ctx context.Context) ([]ring.ActiveDing, error)
}

// DingTracker 已见事件，跨服务重启共享
//
// 只有进程内的第一次成功轮询用于预热：此时已存在的事件只标记不路由。
type DingTracker struct {
	seen   *cache.Cache
	primed atomic.Bool
}

// NewDingTracker 创建跟踪器，事件 ID 在 ttl 后过期
func NewDingTracker(ttl time.Duration) *DingTracker {
	return &DingTracker{seen: cache.New(ttl, 2*ttl)}
}

// markSeen 标记事件，返回是否首次出现
func (t *DingTracker) markSeen(id string) bool {
	// Add 在 key 已存在时返回错误
	return t.seen.Add(id, struct{}{}, cache.DefaultExpiration) == nil
}

// DingPoller 轮询活跃事件并转换为通知
//
// 同一个事件在过期前会在多次轮询中重复出现，按事件 ID 去重。
type DingPoller struct {
	logger   *zap.Logger
	source   DingSource
	cameras  map[int64]ring.Camera
	tracker  *DingTracker
	interval time.Duration
}

// NewDingPoller 创建轮询器
func NewDingPoller(logger *zap.Logger, source DingSource, cameras []ring.Camera, tracker *DingTracker, interval time.Duration) *DingPoller {
	byID := make(map[int64]ring.Camera, len(cameras))
	for _, c := range cameras {
		byID[c.ID] = c
	}

	return &DingPoller{
		logger:   logger,
		source:   source,
		cameras:  byID,
		tracker:  tracker,
		interval: interval,
	}
}

// Run 轮询直到 ctx 取消
func (p *DingPoller) Run(ctx context.Context, out chan<- CameraNotification) {
	p.poll(ctx, out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, out)
		}
	}
}

func (p *DingPoller) poll(ctx context.Context, out chan<- CameraNotification) {
	dings, err := p.source.ActiveDings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DingPollErrorsTotal.Inc()
			p.logger.Warn("Failed to poll active dings", zap.Error(err))
		}
		return
	}

	// 进程内第一次成功轮询只预热
	priming := p.tracker.primed.CompareAndSwap(false, true)

	for _, d := range dings {
		id := d.DingID()
		if !p.tracker.markSeen(id) {
			continue
		}

		if priming {
			continue
		}

		camera, ok := p.cameras[d.DoorbotID]
		if !ok {
			p.logger.Warn("Ding for unknown camera",
				zap.Int64("doorbot_id", d.DoorbotID),
				zap.String("ding_id", id))
			continue
		}

		n := CameraNotification{
			Camera:       camera,
			Notification: d.ToNotification(),
			ReceivedAt:   time.Now(),
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return
		}
	}
}
