package negotiation

import "errors"

var (
	// ErrHandshakeTimeout 握手超时，数据通道未能打开
	ErrHandshakeTimeout = errors.New("negotiation: handshake timeout")

	// ErrUnexpectedDescription 收到与角色不符或重复的描述
	ErrUnexpectedDescription = errors.New("negotiation: unexpected description")

	// ErrRemoteFailure 对端报告协商失败
	ErrRemoteFailure = errors.New("negotiation: remote failure")

	// ErrClosed Multiplexer 已关闭
	ErrClosed = errors.New("negotiation: multiplexer closed")
)
