package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/config"
	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/state"
	"github.com/langchou/ringgazer/internal/storage"
	"github.com/langchou/ringgazer/pkg/ws"
)

// RingAPI Ring 云服务
type RingAPI interface {
	ring.TicketSource
	SnapshotSource
	DingSource
	Authenticate(ctx context.Context) error
	ListLocations(ctx context.Context) ([]ring.Location, error)
	ListCameras(ctx context.Context) ([]ring.Camera, error)
	TokenRotations() <-chan ring.TokenRotation
}

// RingService 地点连接观察 + 通知路由
type RingService struct {
	cfg          *config.Config
	logger       *zap.Logger
	client       RingAPI
	tokens       TokenStore
	router       *Router
	keys         *storage.KeyTable
	stateManager *state.Manager
	broadcaster  Broadcaster
	connRecorder ConnectivityRecorder

	// 事件去重，重启后保留
	dings *DingTracker

	mu        sync.RWMutex
	locations []ring.Location
	cameras   []ring.Camera
	ready     bool
}

// NewRingService 创建服务
func NewRingService(
	cfg *config.Config,
	logger *zap.Logger,
	client RingAPI,
	tokens TokenStore,
	router *Router,
	keys *storage.KeyTable,
) *RingService {
	return &RingService{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		tokens:       tokens,
		router:       router,
		keys:         keys,
		stateManager: state.NewManager(cfg.ConnectivityDistinct),
		dings:        NewDingTracker(cfg.DingDedupTTL),
	}
}

// SetBroadcaster 设置实时推送
func (s *RingService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
	s.router.SetBroadcaster(b)
}

// SetRecorders 设置事件历史记录器
func (s *RingService) SetRecorders(notifications NotificationRecorder, connectivity ConnectivityRecorder) {
	s.router.SetRecorder(notifications)
	s.connRecorder = connectivity
}

// String 服务名（supervisor 日志使用）
func (s *RingService) String() string {
	return "ring-service"
}

// Serve 认证、发现设备并处理事件，阻塞直到 ctx 取消
func (s *RingService) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	// 先启动令牌持久化，认证时可能立即发生轮换
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.persistTokens(ctx, s.client.TokenRotations())
	}()

	if err := s.bootstrap(ctx); err != nil {
		cancel()
		if errors.Is(err, ring.ErrUnauthorized) {
			// 刷新令牌失效，重启也无法恢复
			return fmt.Errorf("%w: %v", suture.ErrTerminateSupervisorTree, err)
		}
		return err
	}

	s.mu.RLock()
	locations := s.locations
	cameras := s.cameras
	s.mu.RUnlock()

	for _, loc := range locations {
		s.watchLocation(ctx, &wg, loc)
	}

	notifications := make(chan CameraNotification, 64)

	poller := NewDingPoller(s.logger, s.client, cameras, s.dings, s.cfg.DingPollInterval)
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx, notifications)
	}()
	go func() {
		defer wg.Done()
		s.router.Run(ctx, notifications)
	}()

	s.logger.Info("Listening for motion and doorbell presses on your cameras.")

	<-ctx.Done()

	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	return ctx.Err()
}

// bootstrap 认证并获取地点和摄像头
func (s *RingService) bootstrap(ctx context.Context) error {
	if err := s.client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	locations, err := s.client.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}

	cameras, err := s.client.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("list cameras: %w", err)
	}

	s.mu.Lock()
	s.locations = locations
	s.cameras = cameras
	s.ready = true
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("Found %d location(s) with %d camera(s).", len(locations), len(cameras)),
		zap.Int("locations", len(locations)),
		zap.Int("cameras", len(cameras)))

	for _, c := range cameras {
		key, _ := s.keys.KeyFor(c.Name())
		s.logger.Debug("Camera discovered",
			zap.Int64("id", c.ID),
			zap.String("name", c.Name()),
			zap.String("kind", c.Kind),
			zap.String("snapshot_key", key))
	}

	return nil
}

// watchLocation 启动地点的实时连接和状态观察
func (s *RingService) watchLocation(ctx context.Context, wg *sync.WaitGroup, loc ring.Location) {
	machine := s.stateManager.GetOrCreate(loc.ID, loc.Name)

	obs := NewLocationObserver(s.logger, loc, machine)
	obs.recorder = s.connRecorder
	obs.broadcaster = s.broadcaster

	stream := ring.NewLocationStream(s.logger, loc.ID, s.client)
	stream.SetCallbacks(ring.StreamingCallbacks{
		OnConnect:    func(string) { obs.Signal(true) },
		OnDisconnect: func(string, error) { obs.Signal(false) },
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		obs.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		stream.Run(ctx)
	}()

	if s.cfg.ConnectivityPollInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollConnectivity(ctx, s.cfg.ConnectivityPollInterval, stream, obs)
		}()
	}
}

// Ready 是否已完成认证和设备发现
func (s *RingService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Locations 地点及连接状态
func (s *RingService) Locations() []models.Location {
	s.mu.RLock()
	locations := s.locations
	s.mu.RUnlock()

	result := make([]models.Location, 0, len(locations))
	for _, loc := range locations {
		current := state.StatePending
		if machine, ok := s.stateManager.Get(loc.ID); ok {
			current = machine.CurrentState()
		}
		result = append(result, models.Location{
			ID:    loc.ID,
			Name:  loc.Name,
			State: current,
		})
	}
	return result
}

// Cameras 摄像头及快照 key
func (s *RingService) Cameras() []models.Camera {
	s.mu.RLock()
	cameras := s.cameras
	s.mu.RUnlock()

	result := make([]models.Camera, 0, len(cameras))
	for _, c := range cameras {
		key, _ := s.keys.KeyFor(c.Name())
		result = append(result, models.Camera{
			ID:          c.ID,
			Name:        c.Name(),
			Kind:        c.Kind,
			LocationID:  c.LocationID,
			IsDoorbell:  c.IsDoorbell,
			SnapshotKey: key,
		})
	}
	return result
}

// InitData WebSocket 初始数据
func (s *RingService) InitData() *ws.InitData {
	return &ws.InitData{
		Locations: s.Locations(),
		Cameras:   s.Cameras(),
	}
}

// LocationStates 所有地点连接状态
func (s *RingService) LocationStates() map[string]*state.LocationState {
	return s.stateManager.GetAllStates()
}
