// Package kinematics 提供时间线状态向量的运动学计算
//
// 包含：
//   - Extrapolate: 纯函数，将向量外推 Δt 秒
//   - FilterFields: 只保留可识别字段
//   - FilterUpdate: 判断部分更新是否产生实际变化
package kinematics

import "github.com/dep2p/go-timingmesh/pkg/types"

// ExtrapolateFunc 外推函数签名
type ExtrapolateFunc func(v types.TimingStateVector, dt float64) types.TimingStateVector

// Extrapolate 将向量沿匀加速运动外推 dt 秒
func Extrapolate(v types.TimingStateVector, dt float64) types.TimingStateVector {
	if dt == 0 {
		return v
	}
	return types.TimingStateVector{
		Acceleration: v.Acceleration,
		Position:     v.Position + v.Velocity*dt + 0.5*v.Acceleration*dt*dt,
		Timestamp:    v.Timestamp + dt,
		Velocity:     v.Velocity + v.Acceleration*dt,
	}
}

// ExtrapolateTo 将向量外推到时间点 now（Unix 秒）
func ExtrapolateTo(v types.TimingStateVector, now float64) types.TimingStateVector {
	return Extrapolate(v, now-v.Timestamp)
}
