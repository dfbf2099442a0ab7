package timingmesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-timingmesh/config"
	"github.com/dep2p/go-timingmesh/internal/core/eventbus"
	"github.com/dep2p/go-timingmesh/internal/core/recovery"
	"github.com/dep2p/go-timingmesh/internal/core/synchronizer"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("timingmesh")

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 15 * time.Second
)

// Provider 时间线同步网格中的一个节点
//
// 所有方法并发安全。
type Provider struct {
	url      string
	timeline config.TimelineConfig
	app      *fx.App

	bus        *eventbus.Bus
	sync       *synchronizer.Synchronizer
	supervisor *recovery.Supervisor

	readyEmitter pkgif.Emitter
	errEmitter   pkgif.Emitter
	listeners    *listenerTable

	mu        sync.Mutex
	state     types.ReadyState
	err       error
	destroyed bool

	stopOnce sync.Once
	stopErr  error
}

// New 创建并启动 Provider
//
// idOrURL 可以是完整的中继 URL（ws:// 或 wss://），也可以是房间标识，
// 后者拼接到配置的 Relay.BaseURL 之后；为空时使用 Relay.URL。
func New(idOrURL string, opts ...Option) (*Provider, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, fmt.Errorf("apply options: %w", err)
	}

	url, err := o.config.Relay.ResolveURL(idOrURL)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		url:       url,
		timeline:  o.config.Timeline,
		state:     types.ReadyStateConnecting,
		listeners: newListenerTable(),
	}

	app := buildFxApp(o, url, p)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	p.app = app

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start provider: %w", err)
	}

	logger.Info("Provider 已启动", "url", url, "hopID", p.sync.HopID())
	return p, nil
}

// init 在 Fx 启动前创建发射器并开始分发通知
func (p *Provider) init() error {
	var err error
	if p.readyEmitter, err = p.bus.Emitter(new(types.EvtReadyStateChange)); err != nil {
		return err
	}
	if p.errEmitter, err = p.bus.Emitter(new(types.EvtError)); err != nil {
		return err
	}
	return p.listeners.start(p.bus)
}

// ════════════════════════════════════════════════════════════════════════════
//                              只读属性
// ════════════════════════════════════════════════════════════════════════════

// URL 中继地址
func (p *Provider) URL() string {
	return p.url
}

// Vector 当前时间线状态的快照
func (p *Provider) Vector() types.TimingStateVector {
	return p.sync.Vector().TimingStateVector
}

// ExtendedVector 带 hops 与版本的当前状态
func (p *Provider) ExtendedVector() types.ExtendedVector {
	return p.sync.Vector()
}

// TimeOrigin 当前权威时间源
func (p *Provider) TimeOrigin() float64 {
	return p.sync.TimeOrigin()
}

// Skew 本地时钟相对权威时钟的偏移（秒）
func (p *Provider) Skew() float64 {
	return p.sync.Skew()
}

// Links 已打开的直连数量
func (p *Provider) Links() int {
	return p.sync.Links()
}

// StartPosition 时间线起点，未配置时为 -Inf
func (p *Provider) StartPosition() float64 {
	return p.timeline.Start()
}

// EndPosition 时间线终点，未配置时为 +Inf
func (p *Provider) EndPosition() float64 {
	return p.timeline.End()
}

// ReadyState 当前就绪状态
func (p *Provider) ReadyState() types.ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err 中继致命错误，未发生时为 nil
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ════════════════════════════════════════════════════════════════════════════
//                              操作
// ════════════════════════════════════════════════════════════════════════════

// Update 用部分向量更新时间线并广播给所有直连
//
// 与当前轨迹外推结果一致的更新不产生广播与通知。
func (p *Provider) Update(ctx context.Context, partial types.PartialVector) error {
	if p.isDestroyed() {
		return ErrDestroyed
	}

	err := p.sync.Update(ctx, partial)
	if errors.Is(err, synchronizer.ErrClosed) {
		if p.isDestroyed() {
			return ErrDestroyed
		}
		return ErrClosed
	}
	return err
}

// Destroy 关闭全部直连与中继连接
//
// 第二次调用返回 ErrAlreadyDestroyed。readystatechange 通知异步投递。
func (p *Provider) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrAlreadyDestroyed
	}
	p.destroyed = true
	p.mu.Unlock()

	p.setState(types.ReadyStateClosed)
	return p.stop()
}

// On 注册监听器
func (p *Provider) On(event Event, fn Listener) (ListenerID, error) {
	return p.listeners.add(event, fn)
}

// Off 移除监听器，返回是否存在
func (p *Provider) Off(id ListenerID) bool {
	return p.listeners.remove(id)
}

// Subscribe 直接订阅事件总线，eventType 如 new(types.EvtChange)
//
// 订阅通道在 Destroy 后关闭。
func (p *Provider) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	return p.bus.Subscribe(eventType, opts...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              内部方法
// ════════════════════════════════════════════════════════════════════════════

func (p *Provider) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// setState 迁移就绪状态，非法迁移被忽略
//
// 发射在锁内进行，保证通知顺序与迁移顺序一致；总线发射不阻塞。
func (p *Provider) setState(next types.ReadyState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.CanTransitionTo(next) {
		return
	}
	p.state = next
	logger.Debug("就绪状态变化", "state", next.String())
	_ = p.readyEmitter.Emit(types.EvtReadyStateChange{ReadyState: next})
}

// handleReadyState 中继连接状态变化
func (p *Provider) handleReadyState(next types.ReadyState) {
	if next == types.ReadyStateClosed {
		// 重试耗尽时 Supervisor 先记录错误再进入 closed
		if err := p.supervisor.Err(); err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
		}
	}
	p.setState(next)
}

// handleFatal 中继重试耗尽
//
// 在 Supervisor 的连接 goroutine 上调用，停止 App 需要等待该 goroutine 退出，
// 因此在新 goroutine 中进行。
func (p *Provider) handleFatal(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()

	_ = p.errEmitter.Emit(types.EvtError{Err: err})
	p.setState(types.ReadyStateClosed)

	go func() {
		if err := p.stop(); err != nil {
			logger.Warn("关闭 Provider 失败", "error", err)
		}
	}()
}

// stop 停止 Fx App，只执行一次，并发调用者等待其完成
func (p *Provider) stop() error {
	p.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		err := p.app.Stop(ctx)
		err = multierr.Append(err, p.readyEmitter.Close())
		err = multierr.Append(err, p.errEmitter.Close())
		p.stopErr = err
		logger.Info("Provider 已关闭", "url", p.url)
	})
	return p.stopErr
}
