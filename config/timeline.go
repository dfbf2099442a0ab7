package config

import (
	"fmt"
	"math"
)

// TimelineConfig 可读位置范围
//
// 未设置的端点表示无界，JSON 无法表示无穷大，因此使用指针。
type TimelineConfig struct {
	StartPosition *float64 `json:"start_position,omitempty"`
	EndPosition   *float64 `json:"end_position,omitempty"`
}

// DefaultTimelineConfig 返回 (-Inf, +Inf)
func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{}
}

// Start 起始位置
func (c TimelineConfig) Start() float64 {
	if c.StartPosition == nil {
		return math.Inf(-1)
	}
	return *c.StartPosition
}

// End 结束位置
func (c TimelineConfig) End() float64 {
	if c.EndPosition == nil {
		return math.Inf(1)
	}
	return *c.EndPosition
}

// Validate 验证位置范围
func (c *TimelineConfig) Validate() error {
	start, end := c.Start(), c.End()
	if math.IsNaN(start) || math.IsNaN(end) {
		return fmt.Errorf("%w: timeline bounds must be numbers", ErrInvalidConfig)
	}
	if start > end {
		return fmt.Errorf("%w: start position %v after end position %v", ErrInvalidConfig, start, end)
	}
	return nil
}

func (c TimelineConfig) clone() TimelineConfig {
	var out TimelineConfig
	if c.StartPosition != nil {
		v := *c.StartPosition
		out.StartPosition = &v
	}
	if c.EndPosition != nil {
		v := *c.EndPosition
		out.EndPosition = &v
	}
	return out
}
