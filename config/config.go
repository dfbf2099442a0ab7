// Package config 提供 timingmesh 的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义：
//   - Relay: 中继地址与心跳
//   - Recovery: 中继重连退避
//   - Offset: 时钟偏移估计
//   - WebRTC: ICE 服务器与数据通道标签
//   - Timeline: 可读位置范围
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Relay.BaseURL = "wss://relay.example.org"
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
//
//	// 环境变量覆盖
//	err = cfg.ApplyEnv(os.LookupEnv)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid config")

// Config 是 timingmesh 的完整配置结构
type Config struct {
	// Relay 中继配置
	Relay RelayConfig `json:"relay"`

	// Recovery 中继重连配置
	Recovery RecoveryConfig `json:"recovery"`

	// Offset 时钟偏移估计配置
	Offset OffsetConfig `json:"offset"`

	// WebRTC 点对点传输配置
	WebRTC WebRTCConfig `json:"webrtc"`

	// Timeline 位置范围配置
	Timeline TimelineConfig `json:"timeline"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Relay:    DefaultRelayConfig(),
		Recovery: DefaultRecoveryConfig(),
		Offset:   DefaultOffsetConfig(),
		WebRTC:   DefaultWebRTCConfig(),
		Timeline: DefaultTimelineConfig(),
	}
}

// Validate 验证配置的有效性
//
// 零值字段被修正为默认值，无法修正的错误包装 ErrInvalidConfig 返回。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	if err := c.Offset.Validate(); err != nil {
		return err
	}
	if err := c.WebRTC.Validate(); err != nil {
		return err
	}
	return c.Timeline.Validate()
}

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保持默认值。
//
// 示例 JSON:
//
//	{
//	  "relay": {"base_url": "wss://relay.example.org", "heartbeat_interval": "5s"},
//	  "webrtc": {"ice_servers": ["stun:stun.example.org:3478"]}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cloned := *c
	cloned.WebRTC.ICEServers = append([]string(nil), c.WebRTC.ICEServers...)
	cloned.Timeline = c.Timeline.clone()
	return &cloned
}
