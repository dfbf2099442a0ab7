package types

// ReadyState 就绪状态
//
// 状态只能按 connecting → open → closed 推进，closed 为终态。
type ReadyState int

const (
	// ReadyStateConnecting 正在连接中继
	ReadyStateConnecting ReadyState = iota
	// ReadyStateOpen 中继已连接
	ReadyStateOpen
	// ReadyStateClosed 已关闭（终态）
	ReadyStateClosed
)

// String 返回状态名称
func (s ReadyState) String() string {
	switch s {
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransitionTo 检查状态迁移是否合法
func (s ReadyState) CanTransitionTo(next ReadyState) bool {
	switch s {
	case ReadyStateConnecting:
		return next == ReadyStateOpen || next == ReadyStateClosed
	case ReadyStateOpen:
		return next == ReadyStateClosed
	default:
		return false
	}
}

// Role 协商角色
type Role int

const (
	// RolePassive 被动方：等待 offer 并回复 answer
	RolePassive Role = iota
	// RoleActive 主动方：创建数据通道并发送 offer
	RoleActive
)

// String 返回角色名称
func (r Role) String() string {
	if r == RoleActive {
		return "active"
	}
	return "passive"
}

// RoleFor 根据本地与远端 clientID 决定角色
//
// 当且仅当 localID < remoteID（字典序）时本地为主动方。
func RoleFor(localID, remoteID string) Role {
	if localID < remoteID {
		return RoleActive
	}
	return RolePassive
}
