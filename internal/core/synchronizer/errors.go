package synchronizer

import "errors"

// ErrClosed 同步器已停止
var ErrClosed = errors.New("synchronizer: closed")
