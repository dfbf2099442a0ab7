package webrtc

import "errors"

var (
	// ErrNotOpen 数据通道尚未打开
	ErrNotOpen = errors.New("webrtc: data channel not open")

	// ErrChannelClosed 数据通道已关闭
	ErrChannelClosed = errors.New("webrtc: data channel closed")

	// ErrUnknownSDPType 无法识别的描述类型
	ErrUnknownSDPType = errors.New("webrtc: unknown sdp type")
)
