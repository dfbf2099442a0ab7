package config

import (
	"fmt"
	"time"
)

// OffsetConfig 时钟偏移估计配置
type OffsetConfig struct {
	// PingInterval 每条链路发送 ping 的间隔
	// 默认值: 1s
	PingInterval Duration `json:"ping_interval"`

	// SampleSize 估计偏移时取最近多少个样本的均值
	// 默认值: 5
	SampleSize int `json:"sample_size"`

	// RTTWindow 用于链路排序的最小 RTT 窗口
	// 默认值: 60
	RTTWindow int `json:"rtt_window"`
}

// DefaultOffsetConfig 返回默认的偏移估计配置
func DefaultOffsetConfig() OffsetConfig {
	return OffsetConfig{
		PingInterval: Duration(time.Second),
		SampleSize:   5,
		RTTWindow:    60,
	}
}

// Validate 验证偏移估计配置
func (c *OffsetConfig) Validate() error {
	def := DefaultOffsetConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.SampleSize == 0 {
		c.SampleSize = def.SampleSize
	}
	if c.RTTWindow == 0 {
		c.RTTWindow = def.RTTWindow
	}
	if c.SampleSize < 0 || c.RTTWindow < 0 {
		return fmt.Errorf("%w: offset sample sizes must be positive", ErrInvalidConfig)
	}
	if c.RTTWindow < c.SampleSize {
		return fmt.Errorf("%w: rtt_window (%d) smaller than sample_size (%d)",
			ErrInvalidConfig, c.RTTWindow, c.SampleSize)
	}
	return nil
}
