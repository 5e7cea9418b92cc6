package ws

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit         = "init"         // 初始化数据（地点+摄像头）
	MsgTypeNotification = "notification" // 摄像头通知
	MsgTypeConnectivity = "connectivity" // 地点连接状态变化
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
	sendBuffer     = 256
)

// Message WebSocket 消息结构
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InitData 初始化数据
type InitData struct {
	Locations interface{} `json:"locations"`
	Cameras   interface{} `json:"cameras"`
}

// subscriber 一个已连接的仪表盘
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub 向所有仪表盘推送通知和连接状态
type Hub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	join   chan *subscriber
	leave  chan *subscriber
	fanout chan []byte

	providerMu  sync.RWMutex
	getInitData func() *InitData
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
		join:   make(chan *subscriber, 64),
		leave:  make(chan *subscriber, 64),
		fanout: make(chan []byte, 256),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.providerMu.Lock()
	defer h.providerMu.Unlock()
	h.getInitData = provider
}

// String 服务名（supervisor 日志使用）
func (h *Hub) String() string {
	return "websocket-hub"
}

// Serve 运行 Hub，直到 ctx 取消
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return ctx.Err()

		case s := <-h.join:
			total := h.add(s)
			h.logger.Info("WebSocket client connected", zap.Int("total_clients", total))
			h.greet(s)

		case s := <-h.leave:
			total := h.remove(s)
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))

		case msg := <-h.fanout:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(s *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	return len(h.subs)
}

// remove 关闭 out 让写协程退出，重复调用无副作用
func (h *Hub) remove(s *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
	return len(h.subs)
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.out)
	}
}

// deliver 写入每个订阅者的缓冲区，跟不上的直接断开
func (h *Hub) deliver(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.out <- msg:
		default:
			h.logger.Warn("WebSocket client too slow, disconnecting")
			delete(h.subs, s)
			close(s.out)
		}
	}
}

// greet 新连接先收到一份完整的地点和摄像头列表
func (h *Hub) greet(s *subscriber) {
	h.providerMu.RLock()
	provider := h.getInitData
	h.providerMu.RUnlock()

	if provider == nil {
		h.logger.Debug("No init data provider set")
		return
	}

	initData := provider()
	if initData == nil {
		return
	}

	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: initData})
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case s.out <- data:
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// Broadcast 广播消息给所有客户端，缓冲区满时丢弃
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.fanout <- message:
	default:
		h.logger.Warn("WebSocket broadcast buffer full, dropping message")
	}
}

// BroadcastMessage 广播结构化消息给所有客户端
func (h *Hub) BroadcastMessage(msgType string, data interface{}) {
	jsonData, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.Broadcast(jsonData)
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Attach 接管已升级的连接，直到对端断开或 Hub 停止
func (h *Hub) Attach(conn *websocket.Conn) {
	s := &subscriber{conn: conn, out: make(chan []byte, sendBuffer)}
	h.join <- s

	go h.writeTo(s)
	go h.readFrom(s)
}

// readFrom 仪表盘是只读的：丢弃入站数据，只靠 pong 续期
func (h *Hub) readFrom(s *subscriber) {
	defer func() {
		h.leave <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// writeTo 发送缓冲区中的消息并定时 ping；out 关闭时发送 close 帧
func (h *Hub) writeTo(s *subscriber) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
