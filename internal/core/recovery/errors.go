package recovery

import "errors"

var (
	// ErrNotConnected 当前没有中继连接
	ErrNotConnected = errors.New("relay not connected")

	// ErrClosed Supervisor 已关闭
	ErrClosed = errors.New("supervisor closed")

	// ErrAlreadyStarted Supervisor 已启动
	ErrAlreadyStarted = errors.New("supervisor already started")
)
