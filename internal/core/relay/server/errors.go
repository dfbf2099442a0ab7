package server

import "errors"

var (
	// ErrServerClosed 中继服务已关闭
	ErrServerClosed = errors.New("relay server closed")
)
