package recovery

import (
	"time"
)

// ============================================================================
//                              恢复配置
// ============================================================================

// Config Supervisor 配置
type Config struct {
	// MaxAttempts 连续失败次数上限，达到即为致命错误
	// 默认值: 4
	MaxAttempts int

	// BaseDelay 退避基数，第 n 次失败后等待 BaseDelay × n²
	// 默认值: 1s
	BaseDelay time.Duration

	// DialTimeout 单次拨号超时
	// 默认值: 10s
	DialTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 4,
		BaseDelay:   1 * time.Second,
		DialTimeout: 10 * time.Second,
	}
}

// Validate 修正无效值为默认值
func (c *Config) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return nil
}

// Delay 第 attempt 次失败后的等待时间
func (c *Config) Delay(attempt int) time.Duration {
	return c.BaseDelay * time.Duration(attempt*attempt)
}
