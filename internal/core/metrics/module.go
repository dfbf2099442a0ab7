package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	// Registerer 未提供时使用私有 Registry
	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics 提供指标集合
func ProvideMetrics(input ModuleInput) *Metrics {
	return New(input.Registerer)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}
