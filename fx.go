package timingmesh

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-timingmesh/config"
	"github.com/dep2p/go-timingmesh/internal/core/eventbus"
	"github.com/dep2p/go-timingmesh/internal/core/metrics"
	"github.com/dep2p/go-timingmesh/internal/core/negotiation"
	"github.com/dep2p/go-timingmesh/internal/core/recovery"
	"github.com/dep2p/go-timingmesh/internal/core/relay/client"
	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/internal/core/synchronizer"
	"github.com/dep2p/go-timingmesh/internal/core/transport/webrtc"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. EventBus → Metrics → Synchronizer
//  2. Negotiation（依赖 Synchronizer 接收打开的通道）
//  3. Recovery（依赖 Negotiation 处理中继消息）
//
// Negotiation 通过 relayBridge 向 Recovery 发送帧，打破两者之间的构造环。
// 生命周期按相反顺序停止：先断开中继，再关闭会话，最后停止同步器与总线。
func buildFxApp(o *options, url string, p *Provider) *fx.App {
	cfg := o.config

	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
		fx.Supply(p),
		fx.Supply(fx.Annotated{Name: "relay_url", Target: url}),
		fx.Provide(
			func() clock.Clock { return o.clock },
			func(cfg *config.Config) synchronizer.Config { return synchronizerConfig(cfg, o.hopID) },
			negotiationConfig,
			recoveryConfig,
			func(cfg *config.Config, clk clock.Clock) pkgif.RelayDialer {
				if o.dialer != nil {
					return o.dialer
				}
				return client.NewDialer(client.Config{
					HeartbeatInterval: cfg.Relay.HeartbeatInterval.Duration(),
					HandshakeTimeout:  cfg.Relay.HandshakeTimeout.Duration(),
				}, clk)
			},
			func(cfg *config.Config) pkgif.PeerConnectionFactory {
				if o.factory != nil {
					return o.factory
				}
				return webrtc.NewFactory(webrtc.Config{ICEServers: cfg.WebRTC.ICEServers})
			},
			newRelayBridge,
			provideSendFunc,
			provideNegotiationHandlers,
			provideRecoveryHandlers,
		),

		eventbus.Module(),
		metrics.Module(),
		synchronizer.Module(),
		negotiation.Module(),
		recovery.Module(),
	}

	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	modules = append(modules,
		fx.Invoke(bindRelayBridge),
		fx.Invoke(injectProviderComponents),
	)
	modules = append(modules, o.userFxOptions...)

	// 使用 NOP zap logger 屏蔽 Fx 容器日志
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置映射
// ════════════════════════════════════════════════════════════════════════════

func synchronizerConfig(cfg *config.Config, hopID int) synchronizer.Config {
	return synchronizer.Config{
		PingInterval: cfg.Offset.PingInterval.Duration(),
		SampleSize:   cfg.Offset.SampleSize,
		RTTWindow:    cfg.Offset.RTTWindow,
		Range:        types.Range{Start: cfg.Timeline.Start(), End: cfg.Timeline.End()},
		HopID:        hopID,
	}
}

func negotiationConfig(cfg *config.Config) negotiation.Config {
	return negotiation.Config{
		Label:             cfg.WebRTC.Label,
		HeartbeatInterval: cfg.Relay.HeartbeatInterval.Duration(),
		HandshakeTimeout:  cfg.Relay.HandshakeTimeout.Duration(),
	}
}

func recoveryConfig(cfg *config.Config) *recovery.Config {
	rc := &recovery.Config{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BaseDelay:   cfg.Recovery.BaseDelay.Duration(),
		DialTimeout: cfg.Relay.HandshakeTimeout.Duration(),
	}
	_ = rc.Validate()
	return rc
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件连接
// ════════════════════════════════════════════════════════════════════════════

// relayBridge 把协商帧转交给中继连接管理器
//
// Multiplexer 构造时 Supervisor 尚不存在，绑定完成前发送返回 ErrNotConnected。
type relayBridge struct {
	supervisor atomic.Pointer[recovery.Supervisor]
}

func newRelayBridge() *relayBridge {
	return &relayBridge{}
}

func (b *relayBridge) send(frame wire.PeerFrame) error {
	sup := b.supervisor.Load()
	if sup == nil {
		return recovery.ErrNotConnected
	}
	return sup.Send(frame)
}

func bindRelayBridge(b *relayBridge, sup *recovery.Supervisor) {
	b.supervisor.Store(sup)
}

func provideSendFunc(b *relayBridge) negotiation.SendFunc {
	return b.send
}

// provideNegotiationHandlers 打开的通道交给同步器
func provideNegotiationHandlers(s *synchronizer.Synchronizer, m *metrics.Metrics) negotiation.Handlers {
	return negotiation.Handlers{
		OnOpen: func(o *negotiation.Opened) {
			m.Negotiation(true)
			if err := s.AddLink(o.ClientID, o.Role, o.Channel, o.Conn, o.Release); err != nil {
				logger.Debug("同步器已停止，丢弃通道", "clientID", log.TruncateID(o.ClientID, 8), "error", err)
			}
		},
		OnFailure: func(clientID string, err error) {
			m.Negotiation(false)
			logger.Debug("协商失败", "clientID", log.TruncateID(clientID, 8), "error", err)
		},
	}
}

// provideRecoveryHandlers 中继消息交给 Multiplexer，状态变化交给 Provider
func provideRecoveryHandlers(p *Provider, mux *negotiation.Multiplexer, m *metrics.Metrics, clk clock.Clock) recovery.Handlers {
	return recovery.Handlers{
		OnStateChange: p.handleReadyState,
		OnMessage: func(msg wire.Message) {
			if im, ok := msg.(wire.Init); ok {
				relaySkew := im.Origin - seconds(clk)
				m.RelaySkew.Set(relaySkew)
				logger.Debug("中继分配 clientID", "clientID", log.TruncateID(im.Client.ID, 8),
					"peers", len(im.Events), "relaySkew", relaySkew)
			}
			mux.HandleMessage(msg)
		},
		OnDisconnect: func(err error) {
			m.RelayReconnects.Inc()
			logger.Info("中继连接断开", "error", err)
		},
		OnFatal: p.handleFatal,
	}
}

// providerInjectParams Provider 需要的内部组件
type providerInjectParams struct {
	fx.In

	Bus          *eventbus.Bus
	Synchronizer *synchronizer.Synchronizer
	Supervisor   *recovery.Supervisor
}

// injectProviderComponents 注入组件并在启动前建立订阅
func injectProviderComponents(p *Provider, params providerInjectParams) error {
	p.bus = params.Bus
	p.sync = params.Synchronizer
	p.supervisor = params.Supervisor
	return p.init()
}

func seconds(clk clock.Clock) float64 {
	return float64(clk.Now().UnixNano()) / 1e9
}
