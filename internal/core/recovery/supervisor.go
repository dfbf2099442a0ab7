package recovery

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("core/recovery")

// Handlers Supervisor 回调，均在读循环 goroutine 上调用
type Handlers struct {
	// OnStateChange 就绪状态变化
	OnStateChange func(types.ReadyState)

	// OnConnect 每次连接建立
	OnConnect func()

	// OnMessage 按到达顺序交付的中继消息
	OnMessage func(wire.Message)

	// OnDisconnect 连接断开，之后可能重连
	OnDisconnect func(err error)

	// OnFatal 重试耗尽，err 为最后一次失败的原始错误
	OnFatal func(err error)
}

// ============================================================================
//                              Supervisor
// ============================================================================

// Supervisor 中继连接管理器
type Supervisor struct {
	config   *Config
	url      string
	dialer   interfaces.RelayDialer
	clock    clock.Clock
	handlers Handlers

	mu      sync.Mutex
	conn    interfaces.RelayConn
	state   types.ReadyState
	err     error
	attempt int
	started bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor 创建 Supervisor
func NewSupervisor(config *Config, url string, dialer interfaces.RelayDialer, clk clock.Clock, handlers Handlers) *Supervisor {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()
	if clk == nil {
		clk = clock.New()
	}

	return &Supervisor{
		config:   config,
		url:      url,
		dialer:   dialer,
		clock:    clk,
		handlers: handlers,
		state:    types.ReadyStateConnecting,
		done:     make(chan struct{}),
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动连接循环
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == types.ReadyStateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	logger.Debug("中继连接管理器已启动", "url", s.url)
	return nil
}

// Stop 停止连接循环并进入 closed
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	started := s.started
	cancel := s.cancel
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-s.done
	}
	s.setState(types.ReadyStateClosed)
	return nil
}

// ============================================================================
//                              状态查询
// ============================================================================

// ReadyState 当前就绪状态
func (s *Supervisor) ReadyState() types.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err 致命错误，未发生时为 nil
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Attempt 当前连续失败次数
func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Send 向中继发送一条消息
func (s *Supervisor) Send(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(data)
}

// ============================================================================
//                              内部方法
// ============================================================================

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.attempt++
		attempt := s.attempt
		s.mu.Unlock()

		if attempt >= s.config.MaxAttempts {
			s.fail(err)
			return
		}

		delay := s.config.Delay(attempt)
		logger.Warn("中继连接失败，稍后重试", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
	}
}

// connectOnce 建立一次连接并读取到断开为止
func (s *Supervisor) connectOnce(ctx context.Context) error {
	dialCtx, cancel := s.clock.WithTimeout(ctx, s.config.DialTimeout)
	conn, err := s.dialer.Dial(dialCtx, s.url)
	cancel()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	s.conn = conn
	s.mu.Unlock()

	logger.Info("已连接中继", "url", s.url)
	s.setState(types.ReadyStateOpen)
	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}

	err = s.readLoop(conn)

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()

	if ctx.Err() == nil && s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(err)
	}
	return err
}

func (s *Supervisor) readLoop(conn interfaces.RelayConn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.attempt = 0
		s.mu.Unlock()

		msg, err := wire.Decode(data)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownMessage) {
				logger.Debug("忽略未知中继消息", "error", err)
			} else {
				logger.Warn("无效中继消息", "error", err)
			}
			continue
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(msg)
		}
	}
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	logger.Error("中继重试耗尽", "attempts", s.config.MaxAttempts, "error", err)
	s.setState(types.ReadyStateClosed)
	if s.handlers.OnFatal != nil {
		s.handlers.OnFatal(err)
	}
}

func (s *Supervisor) setState(next types.ReadyState) {
	s.mu.Lock()
	if s.state == next || !s.state.CanTransitionTo(next) {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(next)
	}
}
