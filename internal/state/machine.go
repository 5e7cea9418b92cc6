package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 地点连接状态常量
const (
	StatePending      = "pending" // 尚未收到过 connected
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// 事件常量
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// LocationState 地点连接状态
type LocationState struct {
	LocationID   string    `json:"location_id"`
	Name         string    `json:"name"`
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
}

// Transition 一次连接信号的处理结果
type Transition struct {
	Connected bool
	From      string
	To        string
	Emit      bool // 是否需要记录
}

// Machine 地点连接状态机
//
// pending 状态下的 disconnect 会被丢弃，即首次 connected 之前不记录断开；
// distinct 为 true 时连续相同的信号只记录第一次。
type Machine struct {
	mu         sync.RWMutex
	locationID string
	name       string
	distinct   bool
	fsm        *fsm.FSM
	since      time.Time
}

// NewMachine 创建状态机
func NewMachine(locationID, name string, distinct bool) *Machine {
	return &Machine{
		locationID: locationID,
		name:       name,
		distinct:   distinct,
		since:      time.Now(),
		fsm: fsm.NewFSM(
			StatePending,
			fsm.Events{
				{Name: EventConnect, Src: []string{StatePending, StateConnected, StateDisconnected}, Dst: StateConnected},
				{Name: EventDisconnect, Src: []string{StateConnected, StateDisconnected}, Dst: StateDisconnected},
			},
			fsm.Callbacks{},
		),
	}
}

// Observe 处理一次 connected/disconnected 信号
func (m *Machine) Observe(connected bool) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	event := EventDisconnect
	if connected {
		event = EventConnect
	}

	from := m.fsm.Current()
	t := Transition{Connected: connected, From: from}

	err := m.fsm.Event(context.Background(), event)
	t.To = m.fsm.Current()

	var noTransition fsm.NoTransitionError
	switch {
	case err == nil:
		t.Emit = true
		m.since = time.Now()
	case errors.As(err, &noTransition):
		// 重复信号
		t.Emit = !m.distinct
	default:
		// pending 状态下的 disconnect
		t.Emit = false
	}

	return t
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// HaveConnected 是否已经收到过 connected
func (m *Machine) HaveConnected() bool {
	return m.CurrentState() != StatePending
}

// GetState 获取完整状态
func (m *Machine) GetState() *LocationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &LocationState{
		LocationID:   m.locationID,
		Name:         m.name,
		CurrentState: m.fsm.Current(),
		Since:        m.since,
	}
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	distinct bool
	machines map[string]*Machine
}

// NewManager 创建管理器
func NewManager(distinct bool) *Manager {
	return &Manager{
		distinct: distinct,
		machines: make(map[string]*Machine),
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(locationID, name string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[locationID]; ok {
		return machine
	}

	machine := NewMachine(locationID, name, m.distinct)
	m.machines[locationID] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(locationID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[locationID]
	return machine, ok
}

// GetAllStates 获取所有地点状态
func (m *Manager) GetAllStates() map[string]*LocationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]*LocationState, len(m.machines))
	for id, machine := range m.machines {
		states[id] = machine.GetState()
	}
	return states
}
