package types

// ============================================================================
//                              通知事件
// ============================================================================

// EvtChange 时间线状态变化
type EvtChange struct {
	Vector TimingStateVector
}

// EvtAdjust 时钟偏移（skew）变化
type EvtAdjust struct {
	Skew float64
}

// EvtReadyStateChange 就绪状态变化
type EvtReadyStateChange struct {
	ReadyState ReadyState
}

// EvtError 致命错误
type EvtError struct {
	Err error
}
