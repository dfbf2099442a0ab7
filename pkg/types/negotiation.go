package types

// ============================================================================
//                              协商数据
// ============================================================================

// SDPType 会话描述类型
type SDPType string

const (
	// SDPTypeOffer offer
	SDPTypeOffer SDPType = "offer"
	// SDPTypeAnswer answer
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription 会话描述
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidate 路径候选
//
// 字段与 RTCIceCandidateInit 对齐。
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}
