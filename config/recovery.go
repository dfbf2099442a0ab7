package config

import (
	"fmt"
	"time"
)

// RecoveryConfig 中继重连配置
//
// 第 n 次失败后等待 BaseDelay × n²，连续 MaxAttempts 次失败后放弃。
type RecoveryConfig struct {
	// MaxAttempts 连续失败上限
	// 默认值: 4
	MaxAttempts int `json:"max_attempts"`

	// BaseDelay 退避基础时间
	// 默认值: 1s
	BaseDelay Duration `json:"base_delay"`
}

// DefaultRecoveryConfig 返回默认的重连配置
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxAttempts: 4,
		BaseDelay:   Duration(time.Second),
	}
}

// Validate 验证重连配置
func (c *RecoveryConfig) Validate() error {
	def := DefaultRecoveryConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	return nil
}
