// Package types 定义 timingmesh 公共类型
//
// 本文件定义时间线状态向量相关类型。
package types

import (
	"fmt"
	"math"
)

// ============================================================================
//                              TimingStateVector
// ============================================================================

// TimingStateVector 时间线运动学状态
//
// 向量只会被整体替换，不会原地修改。Timestamp 为本地时钟的 Unix 秒。
type TimingStateVector struct {
	Acceleration float64 `json:"acceleration"`
	Position     float64 `json:"position"`
	Timestamp    float64 `json:"timestamp"`
	Velocity     float64 `json:"velocity"`
}

// String 返回可读表示
func (v TimingStateVector) String() string {
	return fmt.Sprintf("{pos=%g vel=%g acc=%g ts=%.6f}", v.Position, v.Velocity, v.Acceleration, v.Timestamp)
}

// IsMoving 是否在运动
func (v TimingStateVector) IsMoving() bool {
	return v.Velocity != 0 || v.Acceleration != 0
}

// ============================================================================
//                              ExtendedVector
// ============================================================================

// ExtendedVector 携带权威路径信息的状态向量
//
// Hops 描述从当前权威源到向量来源的路径，Version 为纪元标记。
type ExtendedVector struct {
	TimingStateVector

	Hops    []int `json:"hops"`
	Version int   `json:"version"`
}

// Clone 深拷贝（Hops 不共享底层数组）
func (v ExtendedVector) Clone() ExtendedVector {
	out := v
	out.Hops = append([]int(nil), v.Hops...)
	return out
}

// ============================================================================
//                              PartialVector
// ============================================================================

// PartialVector 部分更新
//
// nil 字段表示未提供。只识别 acceleration、position、velocity、timestamp。
type PartialVector struct {
	Acceleration *float64 `json:"acceleration,omitempty"`
	Position     *float64 `json:"position,omitempty"`
	Timestamp    *float64 `json:"timestamp,omitempty"`
	Velocity     *float64 `json:"velocity,omitempty"`
}

// IsEmpty 是否未包含任何字段
func (p PartialVector) IsEmpty() bool {
	return p.Acceleration == nil && p.Position == nil && p.Timestamp == nil && p.Velocity == nil
}

// Float 返回指向 f 的指针，便于构造 PartialVector
func Float(f float64) *float64 {
	return &f
}

// ============================================================================
//                              位置范围
// ============================================================================

// Range 时间线位置范围
type Range struct {
	Start float64
	End   float64
}

// UnboundedRange 返回 (-Inf, +Inf)
func UnboundedRange() Range {
	return Range{Start: math.Inf(-1), End: math.Inf(1)}
}

// Clamp 将位置限制在范围内
func (r Range) Clamp(position float64) float64 {
	if position < r.Start {
		return r.Start
	}
	if position > r.End {
		return r.End
	}
	return position
}
