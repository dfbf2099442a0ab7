package negotiation

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
)

// ModuleInput 模块输入依赖
//
// SendFunc 与 Handlers 由组装方提供，用于连接中继与同步器。
type ModuleInput struct {
	fx.In

	Config   Config
	Clock    clock.Clock
	Factory  pkgif.PeerConnectionFactory
	Send     SendFunc
	Handlers Handlers
}

// ProvideMultiplexer 提供 Multiplexer
func ProvideMultiplexer(input ModuleInput) (*Multiplexer, error) {
	return NewMultiplexer(input.Config, input.Clock, input.Factory, input.Send, input.Handlers)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("negotiation",
		fx.Provide(ProvideMultiplexer),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC          fx.Lifecycle
	Multiplexer *Multiplexer
}

// registerLifecycle 停止时关闭全部会话
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := input.Multiplexer.Close(); err != nil && !errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		},
	})
}
