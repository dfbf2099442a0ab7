package webrtc

import (
	"sync"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v4"

	"github.com/dep2p/go-timingmesh/pkg/interfaces"
)

// maxMessageSize 单条消息读缓冲
const maxMessageSize = 64 * 1024

// dataChannel 以 detached 模式包装 *webrtc.DataChannel
type dataChannel struct {
	dc *webrtc.DataChannel

	ready chan struct{}

	mu      sync.Mutex
	rwc     datachannel.ReadWriteCloser
	openErr error
	onOpen  []func()
	opened  bool
}

var _ interfaces.DataChannel = (*dataChannel)(nil)

func newDataChannel(dc *webrtc.DataChannel) *dataChannel {
	c := &dataChannel{
		dc:    dc,
		ready: make(chan struct{}),
	}
	dc.OnOpen(c.handleOpen)
	return c
}

func (c *dataChannel) handleOpen() {
	rwc, err := c.dc.Detach()

	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return
	}
	c.opened = true
	c.rwc = rwc
	c.openErr = err
	callbacks := c.onOpen
	c.onOpen = nil
	c.mu.Unlock()
	close(c.ready)

	if err != nil {
		logger.Warn("数据通道 detach 失败", "label", c.dc.Label(), "error", err)
		return
	}
	for _, f := range callbacks {
		f()
	}
}

func (c *dataChannel) Label() string {
	return c.dc.Label()
}

func (c *dataChannel) OnOpen(f func()) {
	c.mu.Lock()
	if c.opened {
		ok := c.openErr == nil
		c.mu.Unlock()
		if ok {
			go f()
		}
		return
	}
	c.onOpen = append(c.onOpen, f)
	c.mu.Unlock()
}

func (c *dataChannel) conn() (datachannel.ReadWriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.rwc, nil
}

// Send 以文本消息发送
func (c *dataChannel) Send(data []byte) error {
	rwc, err := c.conn()
	if err != nil {
		return err
	}
	_, err = rwc.WriteDataChannel(data, true)
	return err
}

func (c *dataChannel) Recv() ([]byte, error) {
	<-c.ready
	rwc, err := c.conn()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, maxMessageSize)
	n, _, err := rwc.ReadDataChannel(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *dataChannel) Close() error {
	c.mu.Lock()
	rwc := c.rwc
	if !c.opened {
		// 未打开即关闭，唤醒阻塞的 Recv
		c.opened = true
		c.openErr = ErrChannelClosed
		c.onOpen = nil
		close(c.ready)
	}
	c.mu.Unlock()

	if rwc != nil {
		_ = rwc.Close()
	}
	return c.dc.Close()
}
