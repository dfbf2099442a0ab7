package kinematics

import "github.com/dep2p/go-timingmesh/pkg/types"

// FilterFields 从任意字段映射中提取可识别字段
//
// 只识别 acceleration、position、velocity、timestamp，其余键被忽略。
// 非数值的值同样被忽略。
func FilterFields(fields map[string]any) types.PartialVector {
	var p types.PartialVector
	for key, raw := range fields {
		f, ok := toFloat(raw)
		if !ok {
			continue
		}
		switch key {
		case "acceleration":
			p.Acceleration = types.Float(f)
		case "position":
			p.Position = types.Float(f)
		case "timestamp":
			p.Timestamp = types.Float(f)
		case "velocity":
			p.Velocity = types.Float(f)
		}
	}
	return p
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Overlay 用部分更新覆盖向量字段
func Overlay(v types.TimingStateVector, p types.PartialVector) types.TimingStateVector {
	if p.Acceleration != nil {
		v.Acceleration = *p.Acceleration
	}
	if p.Position != nil {
		v.Position = *p.Position
	}
	if p.Timestamp != nil {
		v.Timestamp = *p.Timestamp
	}
	if p.Velocity != nil {
		v.Velocity = *p.Velocity
	}
	return v
}

// FilterUpdate 判断更新是否有效
//
// 将 current 外推到 now，逐字段与更新值比较。全部相等时返回 false
// （无实际变化）；否则返回覆盖了更新字段的外推向量和 true。
func FilterUpdate(current types.TimingStateVector, update types.PartialVector, now float64, extrapolate ExtrapolateFunc) (types.TimingStateVector, bool) {
	if extrapolate == nil {
		extrapolate = Extrapolate
	}
	extrapolated := extrapolate(current, now-current.Timestamp)

	if matches(extrapolated, update) {
		return types.TimingStateVector{}, false
	}
	return Overlay(extrapolated, update), true
}

func matches(v types.TimingStateVector, p types.PartialVector) bool {
	if p.Acceleration != nil && *p.Acceleration != v.Acceleration {
		return false
	}
	if p.Position != nil && *p.Position != v.Position {
		return false
	}
	if p.Timestamp != nil && *p.Timestamp != v.Timestamp {
		return false
	}
	if p.Velocity != nil && *p.Velocity != v.Velocity {
		return false
	}
	return true
}
