// Package interfaces 定义 timingmesh 公共接口
//
// 本文件定义中继（Relay）连接接口。中继只负责交换协商消息，
// 假定按序、可靠地投递文本帧。
package interfaces

import "context"

// RelayConn 一条中继连接
type RelayConn interface {
	// ReadMessage 阻塞读取下一帧，连接关闭后返回错误
	ReadMessage() ([]byte, error)

	// WriteMessage 写入一帧（并发安全）
	WriteMessage(data []byte) error

	// Close 关闭连接，使阻塞中的 ReadMessage 返回
	Close() error
}

// RelayDialer 建立中继连接
type RelayDialer interface {
	// Dial 连接到中继 URL
	Dial(ctx context.Context, url string) (RelayConn, error)
}

// RelayDialerFunc 函数适配器
type RelayDialerFunc func(ctx context.Context, url string) (RelayConn, error)

// Dial 实现 RelayDialer
func (f RelayDialerFunc) Dial(ctx context.Context, url string) (RelayConn, error) {
	return f(ctx, url)
}
