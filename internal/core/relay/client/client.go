// Package client 实现基于 WebSocket 的中继连接
//
// 每条连接由一个心跳 goroutine 定期发送 ping，读超时为两个心跳间隔，
// 收到 pong 或任意帧时刷新。写操作由互斥锁串行化。
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
)

var logger = log.Logger("core/relay/client")

// ErrConnClosed 连接已关闭
var ErrConnClosed = errors.New("relay connection closed")

// Config 拨号配置
type Config struct {
	// HeartbeatInterval ping 间隔
	HeartbeatInterval time.Duration

	// HandshakeTimeout WebSocket 握手超时
	HandshakeTimeout time.Duration

	// WriteTimeout 单次写超时
	WriteTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Dialer WebSocket 中继拨号器
type Dialer struct {
	cfg   Config
	clock clock.Clock
	ws    *websocket.Dialer
}

var _ interfaces.RelayDialer = (*Dialer)(nil)

// NewDialer 创建拨号器
func NewDialer(cfg Config, clk clock.Clock) *Dialer {
	d := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Dialer{
		cfg:   cfg,
		clock: clk,
		ws: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
	}
}

// Dial 实现 RelayDialer
func (d *Dialer) Dial(ctx context.Context, url string) (interfaces.RelayConn, error) {
	ws, resp, err := d.ws.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	return NewConn(ws, d.cfg, d.clock), nil
}

// ============================================================================
//                              Conn
// ============================================================================

// Conn 一条 WebSocket 中继连接
type Conn struct {
	ws    *websocket.Conn
	cfg   Config
	clock clock.Clock

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var _ interfaces.RelayConn = (*Conn)(nil)

// NewConn 包装已建立的 WebSocket 连接并启动心跳
func NewConn(ws *websocket.Conn, cfg Config, clk clock.Clock) *Conn {
	c := &Conn{
		ws:    ws,
		cfg:   cfg,
		clock: clk,
		done:  make(chan struct{}),
	}

	_ = ws.SetReadDeadline(c.readDeadline())
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(c.readDeadline())
	})

	go c.heartbeat()
	return c
}

// readDeadline 套接字截止时间由操作系统按墙上时间执行，不使用注入时钟
func (c *Conn) readDeadline() time.Time {
	return time.Now().Add(2 * c.cfg.HeartbeatInterval)
}

func (c *Conn) heartbeat() {
	ticker := c.clock.Ticker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				logger.Debug("心跳失败", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}

// ReadMessage 实现 RelayConn
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil, ErrConnClosed
			default:
			}
			return nil, err
		}
		_ = c.ws.SetReadDeadline(c.readDeadline())
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage 实现 RelayConn
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close 实现 RelayConn
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
