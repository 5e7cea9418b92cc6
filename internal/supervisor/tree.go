package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

// TreeConfig 监督树参数
type TreeConfig struct {
	// 超过阈值后进入退避
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig 默认参数
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree 监督树
//
//	ringgazer
//	├── ring-layer  (Ring 服务)
//	└── api-layer   (WebSocket Hub, HTTP)
type Tree struct {
	root *suture.Supervisor
	ring *suture.Supervisor
	api  *suture.Supervisor
}

// NewTree 创建监督树
func NewTree(logger *zap.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	rootSpec := suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("ringgazer", rootSpec)
	ring := suture.New("ring-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(ring)
	root.Add(api)

	return &Tree{root: root, ring: ring, api: api}
}

// AddRingService 添加 Ring 服务
func (t *Tree) AddRingService(svc suture.Service) suture.ServiceToken {
	return t.ring.Add(svc)
}

// AddAPIService 添加 API 服务
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve 运行监督树，阻塞直到 ctx 取消或树被终止
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport 关闭超时未停止的服务
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// EventHook 将监督事件写入 zap
func EventHook(logger *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := make([]zap.Field, 0, len(e.Map()))
		for k, v := range e.Map() {
			fields = append(fields, zap.Any(k, v))
		}

		switch e.Type() {
		case suture.EventTypeServicePanic:
			logger.Error("Service panicked", fields...)
		case suture.EventTypeServiceTerminate:
			logger.Warn("Service terminated", fields...)
		case suture.EventTypeBackoff:
			logger.Warn("Supervisor entering backoff", fields...)
		case suture.EventTypeResume:
			logger.Info("Supervisor resuming", fields...)
		case suture.EventTypeStopTimeout:
			logger.Error("Service failed to stop in time", fields...)
		default:
			logger.Info(e.String(), fields...)
		}
	}
}
