package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/metrics"
	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/state"
	"github.com/langchou/ringgazer/pkg/ws"
)

// ConnectivityRecorder 记录连接状态变化
type ConnectivityRecorder interface {
	Create(ctx context.Context, c *models.Connectivity) error
}

// LocationObserver 单个地点的连接状态观察者
type LocationObserver struct {
	logger      *zap.Logger
	location    ring.Location
	machine     *state.Machine
	signals     chan bool
	recorder    ConnectivityRecorder
	broadcaster Broadcaster
}

// NewLocationObserver 创建观察者
func NewLocationObserver(logger *zap.Logger, location ring.Location, machine *state.Machine) *LocationObserver {
	return &LocationObserver{
		logger:   logger,
		location: location,
		machine:  machine,
		signals:  make(chan bool, 16),
	}
}

// Signal 投递一次连接信号，缓冲区满时丢弃
func (o *LocationObserver) Signal(connected bool) {
	select {
	case o.signals <- connected:
	default:
		o.logger.Warn("Connectivity signal dropped",
			zap.String("location_id", o.location.ID),
			zap.Bool("connected", connected))
	}
}

// Run 处理连接信号直到 ctx 取消
func (o *LocationObserver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case connected := <-o.signals:
			o.observe(ctx, connected)
		}
	}
}

func (o *LocationObserver) observe(ctx context.Context, connected bool) {
	t := o.machine.Observe(connected)
	if !t.Emit {
		return
	}

	status := "Disconnected from location"
	gauge := 0.0
	if connected {
		status = "Connected to location"
		gauge = 1
	}

	o.logger.Info(status,
		zap.String("location", o.location.Name),
		zap.String("location_id", o.location.ID))

	metrics.LocationConnected.WithLabelValues(o.location.ID).Set(gauge)

	record := &models.Connectivity{
		LocationID:   o.location.ID,
		LocationName: o.location.Name,
		Connected:    connected,
		At:           time.Now(),
	}

	if o.recorder != nil {
		if err := o.recorder.Create(ctx, record); err != nil {
			o.logger.Warn("Failed to record connectivity", zap.Error(err))
		}
	}
	if o.broadcaster != nil {
		o.broadcaster.BroadcastMessage(ws.MsgTypeConnectivity, record)
	}
}

// pollConnectivity 定时采样实时连接状态，推送不可靠时兜底
func pollConnectivity(ctx context.Context, interval time.Duration, stream *ring.LocationStream, obs *LocationObserver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !stream.HasHubs() {
				return
			}
			obs.Signal(stream.IsConnected())
		}
	}
}
