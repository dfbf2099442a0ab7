package link

import (
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-timingmesh/internal/core/offset"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("core/link")

// Remote 对端最近一次发来的状态
type Remote struct {
	Vector types.ExtendedVector
	Origin float64
}

// PeerLink 一条已打开的对端链路
//
// Estimator 与 Remote 只由同步器的事件循环访问；Send 与 Close 并发安全。
type PeerLink struct {
	ClientID string
	Role     types.Role

	Estimator *offset.Estimator
	Remote    *Remote

	// Release 链路被移除后调用，可为 nil
	Release func()

	channel interfaces.DataChannel
	conn    interfaces.PeerConnection

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// New 创建链路
func New(clientID string, role types.Role, channel interfaces.DataChannel, conn interfaces.PeerConnection, estimator *offset.Estimator) *PeerLink {
	if estimator == nil {
		estimator = offset.NewEstimator(offset.DefaultSampleSize, offset.DefaultWindowSize)
	}
	return &PeerLink{
		ClientID:  clientID,
		Role:      role,
		Estimator: estimator,
		channel:   channel,
		conn:      conn,
		closed:    make(chan struct{}),
	}
}

// Send 发送一条消息
func (l *PeerLink) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	select {
	case <-l.closed:
		return errLinkClosed
	default:
	}
	return l.channel.Send(data)
}

var errLinkClosed = errors.New("link closed")

// Run 读循环，阻塞直到通道关闭
//
// 每条解码成功的消息交给 deliver；无法识别的消息被跳过。
func (l *PeerLink) Run(deliver func(Message)) error {
	for {
		data, err := l.channel.Recv()
		if err != nil {
			select {
			case <-l.closed:
				return nil
			default:
			}
			return err
		}

		msg, err := Decode(data)
		if err != nil {
			logger.Debug("跳过无效链路消息", "clientID", log.TruncateID(l.ClientID, 8), "error", err)
			continue
		}
		deliver(msg)
	}
}

// Closed 链路关闭时关闭
func (l *PeerLink) Closed() <-chan struct{} {
	return l.closed
}

// Close 关闭通道与底层连接
func (l *PeerLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.closeErr = multierr.Combine(l.channel.Close(), l.conn.Close())
	})
	return l.closeErr
}
