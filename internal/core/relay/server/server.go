// Package server 实现参考中继服务
//
// 中继按 URL 路径划分房间。每条连接分配 uuid 形式的 clientID 与 token：
//
//   - 新连接收到 init，其中列出房间内已有客户端的 request
//   - 已有客户端收到新连接的 request
//   - 点对点帧按收件人转发，转发前 client 与 token 改写为发送方；
//     token 与收件人当前 token 不符的帧被丢弃
//   - 连接断开时向房间内其他客户端广播 termination
//
// 中继只转发协商消息，不理解其内容。
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
)

var logger = log.Logger("core/relay/server")

// Config 中继服务配置
type Config struct {
	// HeartbeatInterval ping 间隔，读超时为两倍
	HeartbeatInterval time.Duration

	// WriteTimeout 单次写超时
	WriteTimeout time.Duration

	// SendQueue 每个客户端的发送队列长度
	SendQueue int

	// RecentTokens 记录已离开客户端 token 的数量
	RecentTokens int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SendQueue:         256,
		RecentTokens:      1024,
	}
}

// Server 中继服务，实现 http.Handler
type Server struct {
	cfg      Config
	clock    clock.Clock
	upgrader websocket.Upgrader

	mu       sync.Mutex
	rooms    map[string]map[string]*client
	departed *lru.Cache[string, string]
	closed   bool
}

type client struct {
	id    string
	token string
	room  string
	conn  *websocket.Conn
	send  chan []byte
}

// New 创建中继服务
func New(cfg Config, clk clock.Clock) (*Server, error) {
	d := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = d.SendQueue
	}
	if cfg.RecentTokens <= 0 {
		cfg.RecentTokens = d.RecentTokens
	}
	if clk == nil {
		clk = clock.New()
	}

	departed, err := lru.New[string, string](cfg.RecentTokens)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:   cfg,
		clock: clk,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms:    make(map[string]map[string]*client),
		departed: departed,
	}, nil
}

// Clients 房间内的客户端数
func (s *Server) Clients(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

// Stats 房间数与客户端总数
func (s *Server) Stats() (rooms, clients int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		clients += len(room)
	}
	return len(s.rooms), clients
}

// ServeHTTP 升级为 WebSocket 并服务到连接断开
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("升级 WebSocket 失败", "error", err)
		return
	}

	c := &client{
		id:    uuid.NewString(),
		token: uuid.NewString(),
		room:  r.URL.Path,
		conn:  conn,
		send:  make(chan []byte, s.cfg.SendQueue),
	}
	if err := s.join(c); err != nil {
		_ = conn.Close()
		return
	}
	logger.Info("客户端加入", "room", c.room, "clientID", log.TruncateID(c.id, 8))

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.readPump(c) })
	g.Go(func() error { return s.writePump(ctx, c) })
	err = g.Wait()

	s.leave(c)
	logger.Info("客户端离开", "room", c.room, "clientID", log.TruncateID(c.id, 8), "error", err)
}

// Close 关闭所有连接
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var conns []*websocket.Conn
	for _, room := range s.rooms {
		for _, c := range room {
			conns = append(conns, c.conn)
		}
	}
	s.mu.Unlock()

	var err error
	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}
	return err
}

// ============================================================================
//                              房间管理
// ============================================================================

func (s *Server) join(c *client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}

	room := s.rooms[c.room]
	if room == nil {
		room = make(map[string]*client)
		s.rooms[c.room] = room
	}

	announce := wire.Request{Client: wire.Client{ID: c.id}, Token: c.token}
	announceData, err := wire.Encode(announce)
	if err != nil {
		return err
	}

	events := make([]wire.Request, 0, len(room))
	for _, other := range room {
		events = append(events, wire.Request{Client: wire.Client{ID: other.id}, Token: other.token})
		s.enqueue(other, announceData)
	}

	origin := float64(s.clock.Now().UnixNano()) / 1e9
	initData, err := wire.Encode(wire.Init{Client: wire.Client{ID: c.id}, Origin: origin, Events: events})
	if err != nil {
		return err
	}
	s.enqueue(c, initData)

	room[c.id] = c
	return nil
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[c.room]
	if room[c.id] != c {
		return
	}
	delete(room, c.id)
	s.departed.Add(c.token, c.id)
	if len(room) == 0 {
		delete(s.rooms, c.room)
	}

	data, err := wire.Encode(wire.Termination{Client: wire.Client{ID: c.id}})
	if err != nil {
		return
	}
	for _, other := range room {
		s.enqueue(other, data)
	}
}

// enqueue 非阻塞入队，队列满时丢弃，调用方持有 s.mu
func (s *Server) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		logger.Warn("发送队列已满，丢弃帧", "clientID", log.TruncateID(c.id, 8))
	}
}

// ============================================================================
//                              读写循环
// ============================================================================

func (s *Server) readPump(c *client) error {
	defer c.conn.Close()

	// 套接字截止时间按墙上时间执行，注入时钟只驱动心跳
	deadline := func() time.Time { return time.Now().Add(2 * s.cfg.HeartbeatInterval) }
	_ = c.conn.SetReadDeadline(deadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(deadline())

		msg, err := wire.Decode(data)
		if err != nil {
			logger.Debug("忽略无效帧", "clientID", log.TruncateID(c.id, 8), "error", err)
			continue
		}
		s.route(c, msg)
	}
}

func (s *Server) writePump(ctx context.Context, c *client) error {
	ticker := s.clock.Ticker(s.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return err
			}
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

// route 转发点对点帧与终止请求
func (s *Server) route(from *client, msg wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[from.room]

	switch m := msg.(type) {
	case wire.PeerFrame:
		to := room[m.Client.ID]
		if to == nil {
			if _, ok := s.departed.Get(m.Token); ok {
				logger.Debug("丢弃发往已离开客户端的帧", "to", log.TruncateID(m.Client.ID, 8))
			} else {
				logger.Debug("收件人不存在", "to", log.TruncateID(m.Client.ID, 8))
			}
			return
		}
		if m.Token != "" && m.Token != to.token {
			logger.Debug("丢弃过期 token 的帧", "to", log.TruncateID(m.Client.ID, 8))
			return
		}
		m.Client = wire.Client{ID: from.id}
		m.Token = from.token
		data, err := wire.Encode(m)
		if err != nil {
			return
		}
		s.enqueue(to, data)

	case wire.Termination:
		to := room[m.Client.ID]
		if to == nil {
			return
		}
		data, err := wire.Encode(wire.Termination{Client: wire.Client{ID: from.id}})
		if err != nil {
			return
		}
		s.enqueue(to, data)

	default:
		logger.Debug("忽略客户端发来的非转发消息", "clientID", log.TruncateID(from.id, 8))
	}
}
