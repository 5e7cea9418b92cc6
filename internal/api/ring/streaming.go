package ring

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TicketSource 提供地点实时连接票据
type TicketSource interface {
	LocationTicket(ctx context.Context, locationID string) (*Ticket, error)
}

// StreamMessage 地点实时连接推送的消息
type StreamMessage struct {
	Msg      string          `json:"msg"`
	DataType string          `json:"datatype,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// StreamingCallbacks 连接状态回调
type StreamingCallbacks struct {
	OnConnect    func(locationID string)            // 连接成功
	OnDisconnect func(locationID string, err error) // 断开连接
	OnMessage    func(locationID string, msg *StreamMessage)
}

// LocationStream 单个地点的实时 WebSocket 连接
type LocationStream struct {
	logger     *zap.Logger
	locationID string
	tickets    TicketSource
	scheme     string
	callbacks  StreamingCallbacks

	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool
	noHubs      bool // 地点没有基站，停止重连
	stopCh      chan struct{}
	reconnectCh chan struct{}

	// 重连配置
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	currentDelay      time.Duration
	pingInterval      time.Duration
	readTimeout       time.Duration
}

// NewLocationStream 创建地点实时连接
func NewLocationStream(logger *zap.Logger, locationID string, tickets TicketSource) *LocationStream {
	return &LocationStream{
		logger:            logger,
		locationID:        locationID,
		tickets:           tickets,
		scheme:            "wss",
		stopCh:            make(chan struct{}),
		reconnectCh:       make(chan struct{}, 1),
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 60 * time.Second,
		currentDelay:      1 * time.Second,
		pingInterval:      30 * time.Second,
		readTimeout:       90 * time.Second,
	}
}

// SetCallbacks 设置回调函数
func (s *LocationStream) SetCallbacks(callbacks StreamingCallbacks) {
	s.callbacks = callbacks
}

// SetScheme 设置 WebSocket scheme (用于测试)
func (s *LocationStream) SetScheme(scheme string) {
	s.scheme = scheme
}

// SetReconnectDelay 设置重连延迟范围
func (s *LocationStream) SetReconnectDelay(initial, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectDelay = initial
	s.currentDelay = initial
	s.maxReconnectDelay = max
}

// Connect 获取票据并建立连接
func (s *LocationStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ticket, err := s.tickets.LocationTicket(ctx, s.locationID)
	if err != nil {
		return fmt.Errorf("get ticket: %w", err)
	}
	if len(ticket.Assets) == 0 {
		s.mu.Lock()
		s.noHubs = true
		s.mu.Unlock()
		return ErrNoHubs
	}

	u := url.URL{
		Scheme:   s.scheme,
		Host:     ticket.Host,
		Path:     "/ws",
		RawQuery: url.Values{"authcode": {ticket.Ticket}, "ack": {"false"}}.Encode(),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial location: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.currentDelay = s.reconnectDelay // 重置重连延迟
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Debug("Location stream connected",
		zap.String("location_id", s.locationID),
		zap.String("host", ticket.Host))

	if s.callbacks.OnConnect != nil {
		s.callbacks.OnConnect(s.locationID)
	}

	go s.readLoop(conn, stopCh)
	go s.pingLoop(conn, stopCh)

	return nil
}

// Close 关闭连接
func (s *LocationStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected 检查连接状态
func (s *LocationStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// HasHubs 地点是否有基站（无基站时不会建立实时连接）
func (s *LocationStream) HasHubs() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.noHubs
}

// readLoop 消息读取循环
func (s *LocationStream) readLoop(conn *websocket.Conn, stopCh chan struct{}) {
	var readErr error

	defer func() {
		s.mu.Lock()
		wasConnected := s.connected && s.conn == conn
		if wasConnected {
			s.connected = false
			s.conn = nil
		}
		s.mu.Unlock()

		conn.Close()

		if wasConnected {
			if s.callbacks.OnDisconnect != nil {
				s.callbacks.OnDisconnect(s.locationID, readErr)
			}
			s.triggerReconnect()
		}
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Debug("Location stream closed normally",
					zap.String("location_id", s.locationID))
			} else {
				readErr = err
				s.logger.Warn("Location stream read error",
					zap.String("location_id", s.locationID),
					zap.Error(err))
			}
			return
		}

		var msg StreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Debug("Failed to parse location message",
				zap.String("location_id", s.locationID),
				zap.Error(err))
			continue
		}

		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(s.locationID, &msg)
		}
	}
}

// pingLoop 保持连接活跃
func (s *LocationStream) pingLoop(conn *websocket.Conn, stopCh chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("Location stream ping failed",
					zap.String("location_id", s.locationID),
					zap.Error(err))
				return
			}
		}
	}
}

// triggerReconnect 触发重连
func (s *LocationStream) triggerReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
		// 已有重连请求排队
	}
}

// Run 连接并自动重连，阻塞直到 ctx 取消或地点没有基站
func (s *LocationStream) Run(ctx context.Context) {
	defer s.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.Connect(ctx); err != nil {
			if errors.Is(err, ErrNoHubs) {
				s.logger.Info("Location has no hubs, realtime connection disabled",
					zap.String("location_id", s.locationID))
				return
			}

			s.mu.RLock()
			delay := s.currentDelay
			s.mu.RUnlock()

			s.logger.Warn("Location stream connect failed, will retry",
				zap.String("location_id", s.locationID),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			// 指数退避
			s.mu.Lock()
			s.currentDelay *= 2
			if s.currentDelay > s.maxReconnectDelay {
				s.currentDelay = s.maxReconnectDelay
			}
			s.mu.Unlock()
			continue
		}

		// 连接成功，等待断开重连信号
		select {
		case <-ctx.Done():
			return
		case <-s.reconnectCh:
			s.logger.Info("Reconnecting location stream",
				zap.String("location_id", s.locationID))
			s.Close()
			s.mu.Lock()
			s.stopCh = make(chan struct{})
			s.mu.Unlock()
		}
	}
}
