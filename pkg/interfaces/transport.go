// Package interfaces 定义 timingmesh 公共接口
//
// 本文件定义点对点协商原语。这些原语是外部协作者：offer/answer、
// 描述设置、候选收集与应用均为不透明的异步操作。生产实现基于
// pion/webrtc，测试使用进程内实现。
package interfaces

import "github.com/dep2p/go-timingmesh/pkg/types"

// PeerConnection 单个对端的点对点连接
//
// 回调可能在任意 goroutine 上触发，调用方负责串行化。
type PeerConnection interface {
	// CreateDataChannel 创建数据通道（主动方）
	CreateDataChannel(label string) (DataChannel, error)

	// OnDataChannel 注册远端数据通道回调（被动方）
	OnDataChannel(f func(DataChannel))

	// OnICECandidate 注册本地候选回调，nil 表示收集完成
	OnICECandidate(f func(*types.ICECandidate))

	// CreateOffer 生成 offer
	CreateOffer() (types.SessionDescription, error)

	// CreateAnswer 生成 answer
	CreateAnswer() (types.SessionDescription, error)

	// SetLocalDescription 设置本地描述（开始收集候选）
	SetLocalDescription(desc types.SessionDescription) error

	// SetRemoteDescription 设置远端描述
	SetRemoteDescription(desc types.SessionDescription) error

	// AddICECandidate 应用远端候选
	AddICECandidate(candidate types.ICECandidate) error

	// EndOfCandidates 通知远端候选已全部应用
	EndOfCandidates() error

	// Close 关闭连接
	Close() error
}

// DataChannel 消息型数据通道
type DataChannel interface {
	// Label 通道标签
	Label() string

	// OnOpen 注册打开回调；已打开时立即触发
	OnOpen(f func())

	// Send 发送一条消息
	Send(data []byte) error

	// Recv 阻塞接收下一条消息，仅在打开后有效；关闭后返回错误
	Recv() ([]byte, error)

	// Close 关闭通道
	Close() error
}

// PeerConnectionFactory 创建 PeerConnection
type PeerConnectionFactory interface {
	NewPeerConnection() (PeerConnection, error)
}
