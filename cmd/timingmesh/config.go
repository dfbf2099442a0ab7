package main

import (
	"os"

	"github.com/dep2p/go-timingmesh/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// loadConfig 按优先级合并配置：默认值 < 配置文件 < 环境变量
//
// 命令行参数在调用方最后覆盖。
func loadConfig(path string, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.NewConfig()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
		if err != nil {
			return nil, err
		}
		if cfg, err = config.FromJSON(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}
