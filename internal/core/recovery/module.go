package recovery

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *Config
	URL      string `name:"relay_url"`
	Dialer   pkgif.RelayDialer
	Clock    clock.Clock
	Handlers Handlers
}

// ProvideSupervisor 提供 Supervisor
func ProvideSupervisor(input ModuleInput) *Supervisor {
	return NewSupervisor(input.Config, input.URL, input.Dialer, input.Clock, input.Handlers)
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("recovery",
		fx.Provide(ProvideSupervisor),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Supervisor *Supervisor
}

// registerLifecycle 启动连接循环
//
// 连接循环的生命周期不能绑定到 OnStart 的 ctx，后者在启动完成后即被取消。
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return input.Supervisor.Start(context.Background())
		},
		OnStop: func(_ context.Context) error {
			return input.Supervisor.Stop()
		},
	})
}
