package timingmesh

import (
	"errors"

	"github.com/dep2p/go-timingmesh/config"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrAlreadyDestroyed 重复调用 Destroy
	ErrAlreadyDestroyed = errors.New("already destroyed")

	// ErrDestroyed Destroy 之后调用 Update
	ErrDestroyed = errors.New("destroyed and can't be updated")

	// ErrClosed 因中继致命错误已关闭
	ErrClosed = errors.New("provider closed")

	// ────────────────────────────────────────────────────────────────────────
	// 配置与参数错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrUnknownEvent 未知的通知名称
	ErrUnknownEvent = errors.New("unknown event")
)
