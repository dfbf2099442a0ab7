package synchronizer

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-timingmesh/internal/core/metrics"
	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   Config
	Clock    clock.Clock
	EventBus pkgif.EventBus
	Metrics  *metrics.Metrics
}

// ProvideSynchronizer 提供同步器
func ProvideSynchronizer(input ModuleInput) (*Synchronizer, error) {
	return New(input.Config, input.Clock, input.EventBus, input.Metrics)
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("synchronizer",
		fx.Provide(ProvideSynchronizer),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC           fx.Lifecycle
	Synchronizer *Synchronizer
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			input.Synchronizer.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			if err := input.Synchronizer.Stop(); err != nil && err != ErrClosed {
				return err
			}
			return nil
		},
	})
}
