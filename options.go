package timingmesh

import (
	"errors"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-timingmesh/config"
	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	clock      clock.Clock
	dialer     pkgif.RelayDialer
	factory    pkgif.PeerConnectionFactory
	registerer prometheus.Registerer

	// 时间线范围覆盖，nil 表示沿用配置
	startPosition *float64
	endPosition   *float64

	hopID int

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{
		config: config.NewConfig(),
		clock:  clock.New(),
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}

	if o.startPosition != nil {
		o.config.Timeline.StartPosition = o.startPosition
	}
	if o.endPosition != nil {
		o.config.Timeline.EndPosition = o.endPosition
	}
	return o.config.Validate()
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置，调用方之后修改 cfg 不影响 Provider
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithStartPosition 设置时间线起点
func WithStartPosition(pos float64) Option {
	return func(o *options) error {
		if math.IsNaN(pos) {
			return errors.New("start position is NaN")
		}
		o.startPosition = &pos
		return nil
	}
}

// WithEndPosition 设置时间线终点
func WithEndPosition(pos float64) Option {
	return func(o *options) error {
		if math.IsNaN(pos) {
			return errors.New("end position is NaN")
		}
		o.endPosition = &pos
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协作者注入
// ════════════════════════════════════════════════════════════════════════════

// WithClock 注入时钟，测试中传入 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock is nil")
		}
		o.clock = clk
		return nil
	}
}

// WithRelayDialer 替换默认的 WebSocket 中继拨号器
func WithRelayDialer(dialer pkgif.RelayDialer) Option {
	return func(o *options) error {
		if dialer == nil {
			return errors.New("relay dialer is nil")
		}
		o.dialer = dialer
		return nil
	}
}

// WithPeerConnectionFactory 替换默认的 WebRTC 连接工厂
func WithPeerConnectionFactory(factory pkgif.PeerConnectionFactory) Option {
	return func(o *options) error {
		if factory == nil {
			return errors.New("peer connection factory is nil")
		}
		o.factory = factory
		return nil
	}
}

// WithRegisterer 在指定 Registerer 上注册指标
//
// 未设置时指标注册到私有 Registry，不会与其他 Provider 冲突。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithHopID 固定本节点的 hop 标识，主要用于测试
func WithHopID(id int) Option {
	return func(o *options) error {
		if id == 0 {
			return errors.New("hop id must be non-zero")
		}
		o.hopID = id
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
