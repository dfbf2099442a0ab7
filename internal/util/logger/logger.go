// Package logger 安装 timingmesh 的进程级日志 handler
//
// 库代码只通过 pkg/lib/log 记录日志，输出目标和级别由进程决定。
// CLI 在启动时调用 Install：
//
//	cfg := logger.Install(logger.ConfigFromEnv())
//	cfg.SetLevel("negotiation", slog.LevelDebug)
//
// 环境变量配置:
//
//	# 所有组件 info，negotiation 组件 debug
//	TIMINGMESH_LOG_LEVEL=negotiation=debug,info
//
//	# JSON 输出
//	TIMINGMESH_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"

	"github.com/dep2p/go-timingmesh/pkg/lib/log"
)

// Install 把按组件控制级别的 handler 设为 slog 默认 handler
//
// 返回的 Config 可用于运行时调整级别。
func Install(cfg *Config) *Config {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	log.SetDefault(slog.New(NewHandler(cfg)))
	return cfg
}

// Logger 获取绑定子系统的 Logger，不依赖默认 handler
func Logger(cfg *Config, subsystem string) *slog.Logger {
	return slog.New(NewHandler(cfg)).With(ComponentKey, subsystem)
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 也会写到新的目标。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
