package negotiation

import (
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// SendFunc 向中继发送点对点帧
type SendFunc func(wire.PeerFrame) error

// Handlers 会话结果回调，可能在任意会话 goroutine 上调用
type Handlers struct {
	// OnOpen 通道打开
	OnOpen func(*Opened)

	// OnFailure 会话失败，槽位已释放
	OnFailure func(clientID string, err error)
}

// Multiplexer 按 clientID 拆分中继事件流
//
// HandleMessage 必须在单个 goroutine 上按到达顺序调用。
type Multiplexer struct {
	cfg      Config
	clock    clock.Clock
	factory  interfaces.PeerConnectionFactory
	send     SendFunc
	handlers Handlers

	mu         sync.Mutex
	localID    string
	sessions   map[string]*Session
	terminated map[string]*graceTimer
	pending    *lru.Cache[string, []wire.PeerMessage]
	closed     bool
}

// NewMultiplexer 创建 Multiplexer
func NewMultiplexer(cfg Config, clk clock.Clock, factory interfaces.PeerConnectionFactory, send SendFunc, handlers Handlers) (*Multiplexer, error) {
	if factory == nil || send == nil {
		return nil, errors.New("negotiation: factory and send are required")
	}
	if clk == nil {
		clk = clock.New()
	}
	cfg = cfg.withDefaults()

	pending, err := lru.New[string, []wire.PeerMessage](cfg.PendingLimit)
	if err != nil {
		return nil, err
	}

	return &Multiplexer{
		cfg:        cfg,
		clock:      clk,
		factory:    factory,
		send:       send,
		handlers:   handlers,
		sessions:   make(map[string]*Session),
		terminated: make(map[string]*graceTimer),
		pending:    pending,
	}, nil
}

// LocalID 本地 clientID，由最近一次 init 分配
func (m *Multiplexer) LocalID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localID
}

// Len 当前会话数
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Session 返回 clientID 对应的会话
func (m *Multiplexer) Session(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// HandleMessage 处理一条中继消息
func (m *Multiplexer) HandleMessage(msg wire.Message) {
	switch msg := msg.(type) {
	case wire.Init:
		m.Reset(msg.Client.ID)
		for _, req := range msg.Events {
			m.handleRequest(req)
		}
	case wire.Request:
		m.handleRequest(msg)
	case wire.PeerFrame:
		m.handleFrame(msg)
	case wire.Termination:
		m.handleTermination(msg.Client.ID)
	default:
		logger.Warn("忽略未知中继消息")
	}
}

func (m *Multiplexer) handleRequest(req wire.Request) {
	id := req.Client.ID

	m.mu.Lock()
	if m.closed || id == "" || id == m.localID {
		m.mu.Unlock()
		return
	}
	if _, ok := m.terminated[id]; ok {
		m.mu.Unlock()
		logger.Debug("宽限期内忽略请求", "clientID", log.TruncateID(id, 8))
		return
	}
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return
	}

	pc, err := m.factory.NewPeerConnection()
	if err != nil {
		m.mu.Unlock()
		logger.Warn("创建连接失败", "clientID", log.TruncateID(id, 8), "error", err)
		if m.handlers.OnFailure != nil {
			m.handlers.OnFailure(id, err)
		}
		return
	}

	s := newSession(m, id, req.Token, pc)
	m.sessions[id] = s
	buffered, _ := m.pending.Get(id)
	m.pending.Remove(id)
	m.mu.Unlock()

	logger.Debug("创建协商会话", "clientID", log.TruncateID(id, 8), "role", s.role.String(), "buffered", len(buffered))

	s.start()
	for _, msg := range buffered {
		s.deliver(msg)
	}
}

func (m *Multiplexer) handleFrame(frame wire.PeerFrame) {
	id := frame.Client.ID

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.terminated[id]; ok {
		m.mu.Unlock()
		return
	}
	s, ok := m.sessions[id]
	if !ok {
		buffered, _ := m.pending.Get(id)
		m.pending.Add(id, append(buffered, frame.Message))
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	s.deliver(frame.Message)
}

// handleTermination 关闭会话并启动宽限计时，期间该 clientID 的事件被忽略
func (m *Multiplexer) handleTermination(id string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.sessions[id]
	delete(m.sessions, id)
	m.pending.Remove(id)

	if g, ok := m.terminated[id]; ok {
		g.timer.Stop()
	}
	grace := m.cfg.HeartbeatInterval
	if types.RoleFor(m.localID, id) == types.RolePassive {
		grace *= 2
	}
	g := &graceTimer{}
	g.timer = m.clock.AfterFunc(grace, func() { m.purge(id, g) })
	m.terminated[id] = g
	m.mu.Unlock()

	logger.Debug("会话终止", "clientID", log.TruncateID(id, 8), "grace", grace)
	if s != nil {
		s.Close()
	}
}

// graceTimer 终止宽限计时，指针本身作为本次终止的标识
type graceTimer struct {
	timer *clock.Timer
}

func (m *Multiplexer) purge(id string, g *graceTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated[id] == g {
		delete(m.terminated, id)
	}
}

func (m *Multiplexer) handleOpened(o *Opened) {
	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen(o)
	}
}

// release 链路结束，会话交出槽位，之后该 clientID 的 request 会建立新会话
func (m *Multiplexer) release(s *Session) {
	m.mu.Lock()
	if m.sessions[s.clientID] == s {
		delete(m.sessions, s.clientID)
	}
	m.mu.Unlock()

	logger.Debug("释放会话槽位", "clientID", log.TruncateID(s.clientID, 8))
	s.shutdown()
}

func (m *Multiplexer) handleFailed(s *Session, err error) {
	m.mu.Lock()
	if m.sessions[s.clientID] == s {
		delete(m.sessions, s.clientID)
	}
	m.mu.Unlock()

	if m.handlers.OnFailure != nil {
		m.handlers.OnFailure(s.clientID, err)
	}
}

// Reset 关闭全部会话并清空簿记，用于中继重新分配 clientID
func (m *Multiplexer) Reset(localID string) {
	m.mu.Lock()
	sessions := m.drainLocked()
	m.localID = localID
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Close 关闭 Multiplexer，之后的消息被忽略
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	sessions := m.drainLocked()
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Multiplexer) drainLocked() []*Session {
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	for _, g := range m.terminated {
		g.timer.Stop()
	}
	m.sessions = make(map[string]*Session)
	m.terminated = make(map[string]*graceTimer)
	m.pending.Purge()
	return sessions
}
