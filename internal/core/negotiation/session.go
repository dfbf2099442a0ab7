package negotiation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("core/negotiation")

// SessionState 会话状态
type SessionState int32

const (
	// StateBuffering 远端描述未知，远端候选进入缓存
	StateBuffering SessionState = iota
	// StateNegotiating 远端描述已设置，等待通道打开
	StateNegotiating
	// StateOpen 数据通道已打开
	StateOpen
	// StateClosed 会话已结束
	StateClosed
)

// String 返回状态字符串
func (s SessionState) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Opened 协商完成、已打开的点对点通道
type Opened struct {
	ClientID string
	Role     types.Role
	Channel  interfaces.DataChannel

	// Conn 关闭它会同时关闭通道
	Conn interfaces.PeerConnection

	// Release 通道的持有者结束链路后调用，释放 Multiplexer 中该 clientID 的槽位
	Release func()
}

// inbox 事件
type (
	startEvent       struct{}
	remoteEvent      struct{ msg wire.PeerMessage }
	localCandidate   struct{ candidate *types.ICECandidate }
	channelOpened    struct{ dc interfaces.DataChannel }
	handshakeExpired struct{}
)

// Session 单个对端的协商状态机
type Session struct {
	clientID  string
	token     string
	role      types.Role
	cfg       Config
	clock     clock.Clock
	pc        interfaces.PeerConnection
	send      func(wire.PeerMessage) error
	onOpen    func(*Opened)
	onFail    func(*Session, error)
	onRelease func(*Session)

	state atomic.Int32

	inbox     chan any
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// 以下字段仅在 run goroutine 中访问
	remoteSet bool
	pending   []types.ICECandidate
	expected  int
	applied   int
	gathered  int
	ended     bool
	timer     *clock.Timer
}

func newSession(m *Multiplexer, clientID, token string, pc interfaces.PeerConnection) *Session {
	s := &Session{
		clientID:  clientID,
		token:     token,
		role:      types.RoleFor(m.localID, clientID),
		cfg:       m.cfg,
		clock:     m.clock,
		pc:        pc,
		onOpen:    m.handleOpened,
		onFail:    m.handleFailed,
		onRelease: m.release,
		inbox:     make(chan any, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		expected:  -1,
	}
	s.send = func(msg wire.PeerMessage) error {
		return m.send(wire.PeerFrame{Client: wire.Client{ID: clientID}, Token: token, Message: msg})
	}
	return s
}

// ClientID 对端标识
func (s *Session) ClientID() string {
	return s.clientID
}

// Role 本地角色
func (s *Session) Role() types.Role {
	return s.role
}

// State 当前状态
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) start() {
	go s.run()
	s.post(startEvent{})
}

// deliver 投递远端消息
func (s *Session) deliver(msg wire.PeerMessage) {
	s.post(remoteEvent{msg: msg})
}

// post 投递事件，会话结束后丢弃
func (s *Session) post(ev any) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Close 关闭会话并等待其 goroutine 退出
func (s *Session) Close() {
	s.shutdown()
	<-s.done
}

// shutdown 通知会话退出，不等待
func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// Done 会话结束时关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			s.teardown(nil)
			return
		case ev := <-s.inbox:
			if err := s.handle(ev); err != nil {
				s.teardown(err)
				return
			}
		}
	}
}

func (s *Session) handle(ev any) error {
	switch e := ev.(type) {
	case startEvent:
		return s.handleStart()
	case remoteEvent:
		return s.handleRemote(e.msg)
	case localCandidate:
		s.handleLocalCandidate(e.candidate)
		return nil
	case channelOpened:
		s.handleChannelOpened(e.dc)
		return nil
	case handshakeExpired:
		if s.State() != StateOpen {
			return ErrHandshakeTimeout
		}
		return nil
	default:
		return fmt.Errorf("negotiation: unexpected event %T", ev)
	}
}

func (s *Session) handleStart() error {
	s.pc.OnICECandidate(func(c *types.ICECandidate) {
		s.post(localCandidate{candidate: c})
	})
	s.timer = s.clock.AfterFunc(s.cfg.HandshakeTimeout, func() {
		s.post(handshakeExpired{})
	})

	if s.role == types.RolePassive {
		s.pc.OnDataChannel(func(dc interfaces.DataChannel) {
			dc.OnOpen(func() { s.post(channelOpened{dc: dc}) })
		})
		return nil
	}

	dc, err := s.pc.CreateDataChannel(s.cfg.Label)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() { s.post(channelOpened{dc: dc}) })

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	s.sendMessage(wire.Description{SessionDescription: offer})
	return nil
}

func (s *Session) handleRemote(msg wire.PeerMessage) error {
	switch m := msg.(type) {
	case wire.Description:
		return s.handleDescription(m.SessionDescription)
	case wire.Candidate:
		if !s.remoteSet {
			s.pending = append(s.pending, m.ICECandidate)
			return nil
		}
		s.applyCandidate(m.ICECandidate)
		return s.checkEndOfCandidates()
	case wire.Summary:
		s.expected = m.NumberOfGatheredCandidates
		return s.checkEndOfCandidates()
	case wire.Error:
		return fmt.Errorf("%w: %s", ErrRemoteFailure, m.Reason)
	default:
		logger.Warn("忽略未知协商消息", "clientID", log.TruncateID(s.clientID, 8), "type", fmt.Sprintf("%T", msg))
		return nil
	}
}

func (s *Session) handleDescription(desc types.SessionDescription) error {
	want := types.SDPTypeAnswer
	if s.role == types.RolePassive {
		want = types.SDPTypeOffer
	}
	if s.remoteSet || desc.Type != want {
		return fmt.Errorf("%w: %s", ErrUnexpectedDescription, desc.Type)
	}

	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	s.state.CompareAndSwap(int32(StateBuffering), int32(StateNegotiating))

	for _, c := range s.pending {
		s.applyCandidate(c)
	}
	s.pending = nil

	if s.role == types.RolePassive {
		answer, err := s.pc.CreateAnswer()
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		s.sendMessage(wire.Description{SessionDescription: answer})
	}

	return s.checkEndOfCandidates()
}

// applyCandidate 应用失败的候选同样计数，避免阻塞结束信号
func (s *Session) applyCandidate(c types.ICECandidate) {
	if err := s.pc.AddICECandidate(c); err != nil {
		logger.Debug("应用候选失败", "clientID", log.TruncateID(s.clientID, 8), "error", err)
	}
	s.applied++
}

func (s *Session) checkEndOfCandidates() error {
	if s.ended || !s.remoteSet || s.expected < 0 || s.applied != s.expected {
		return nil
	}
	s.ended = true
	if err := s.pc.EndOfCandidates(); err != nil {
		return fmt.Errorf("end of candidates: %w", err)
	}
	return nil
}

func (s *Session) handleLocalCandidate(c *types.ICECandidate) {
	if c == nil {
		s.sendMessage(wire.Summary{NumberOfGatheredCandidates: s.gathered})
		return
	}
	s.gathered++
	s.sendMessage(wire.Candidate{ICECandidate: *c})
}

func (s *Session) handleChannelOpened(dc interfaces.DataChannel) {
	if s.State() == StateOpen {
		return
	}
	s.state.Store(int32(StateOpen))
	if s.timer != nil {
		s.timer.Stop()
	}

	logger.Debug("数据通道已打开", "clientID", log.TruncateID(s.clientID, 8), "role", s.role.String())
	s.onOpen(&Opened{
		ClientID: s.clientID,
		Role:     s.role,
		Channel:  dc,
		Conn:     s.pc,
		Release:  func() { s.onRelease(s) },
	})
}

// sendMessage 发送失败只记录日志，中继断开由 Supervisor 处理
func (s *Session) sendMessage(msg wire.PeerMessage) {
	if err := s.send(msg); err != nil {
		logger.Debug("发送协商消息失败", "clientID", log.TruncateID(s.clientID, 8), "error", err)
	}
}

func (s *Session) teardown(err error) {
	s.state.Store(int32(StateClosed))
	if s.timer != nil {
		s.timer.Stop()
	}
	if cerr := s.pc.Close(); cerr != nil {
		logger.Debug("关闭连接失败", "clientID", log.TruncateID(s.clientID, 8), "error", cerr)
	}

	if err == nil {
		return
	}

	logger.Info("协商失败", "clientID", log.TruncateID(s.clientID, 8), "role", s.role.String(), "error", err)
	if !errors.Is(err, ErrRemoteFailure) {
		s.sendMessage(wire.Error{Reason: err.Error()})
	}
	s.onFail(s, err)
}
