package negotiation

import "time"

// Config 协商配置
type Config struct {
	// Label 数据通道标签
	Label string

	// HeartbeatInterval 中继心跳间隔，决定终止宽限期
	// 主动方等待一个间隔，被动方等待两个
	HeartbeatInterval time.Duration

	// HandshakeTimeout 单个会话从创建到通道打开的最长时间
	HandshakeTimeout time.Duration

	// PendingLimit 缓存未知 clientID 事件的最大条目数
	PendingLimit int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Label:             "timing",
		HeartbeatInterval: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		PendingLimit:      256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Label == "" {
		c.Label = d.Label
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = d.PendingLimit
	}
	return c
}
