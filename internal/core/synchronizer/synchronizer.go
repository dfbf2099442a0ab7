package synchronizer

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-timingmesh/internal/core/kinematics"
	"github.com/dep2p/go-timingmesh/internal/core/link"
	"github.com/dep2p/go-timingmesh/internal/core/metrics"
	"github.com/dep2p/go-timingmesh/internal/core/offset"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("core/synchronizer")

// snapshot 原子发布的只读状态
type snapshot struct {
	vector     types.ExtendedVector
	timeOrigin float64
	skew       float64
}

// Synchronizer 时间线状态同步器
type Synchronizer struct {
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics

	changes interfaces.Emitter
	adjusts interfaces.Emitter

	inbox     chan func()
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	current   atomic.Pointer[snapshot]
	linkCount atomic.Int32

	// 以下字段仅在事件循环中访问
	vector     types.ExtendedVector
	timeOrigin float64
	skew       float64
	links      map[string]*link.PeerLink
}

// New 创建同步器
//
// timeOrigin 为构造时刻的本地时钟读数（Unix 秒），初始向量静止于位置 0，
// 若 0 不在 Range 内则取最近端点。
func New(cfg Config, clk clock.Clock, bus interfaces.EventBus, m *metrics.Metrics) (*Synchronizer, error) {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	cfg = cfg.withDefaults()

	changes, err := bus.Emitter(new(types.EvtChange))
	if err != nil {
		return nil, err
	}
	adjusts, err := bus.Emitter(new(types.EvtAdjust))
	if err != nil {
		_ = changes.Close()
		return nil, err
	}

	now := seconds(clk.Now())
	s := &Synchronizer{
		cfg:        cfg,
		clock:      clk,
		metrics:    m,
		changes:    changes,
		adjusts:    adjusts,
		inbox:      make(chan func(), 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		timeOrigin: now,
		links:      make(map[string]*link.PeerLink),
	}
	s.vector = types.ExtendedVector{
		TimingStateVector: types.TimingStateVector{
			Position:  cfg.Range.Clamp(0),
			Timestamp: now,
		},
		Hops: []int{cfg.HopID},
	}
	s.publish()
	return s, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动事件循环
func (s *Synchronizer) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop 停止事件循环并关闭全部链路
func (s *Synchronizer) Stop() error {
	first := false
	s.stopOnce.Do(func() {
		first = true
		close(s.stop)
	})
	if !first {
		return ErrClosed
	}

	// 未启动时循环不存在，直接在当前 goroutine 清理
	started := true
	s.startOnce.Do(func() {
		started = false
		s.closeAllLinks()
		close(s.done)
	})
	if started {
		<-s.done
	}
	s.wg.Wait()

	_ = s.changes.Close()
	_ = s.adjusts.Close()
	return nil
}

func (s *Synchronizer) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.stop:
			s.closeAllLinks()
			return
		}
	}
}

// post 把 fn 投递到事件循环
func (s *Synchronizer) post(fn func()) error {
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- fn:
		return nil
	case <-s.stop:
		return ErrClosed
	}
}

// ============================================================================
//                              只读属性
// ============================================================================

// Vector 当前向量快照
func (s *Synchronizer) Vector() types.ExtendedVector {
	return s.current.Load().vector.Clone()
}

// TimeOrigin 当前权威源的 timeOrigin
func (s *Synchronizer) TimeOrigin() float64 {
	return s.current.Load().timeOrigin
}

// Skew 与权威时钟的偏移（秒），本节点即权威时为 0
func (s *Synchronizer) Skew() float64 {
	return s.current.Load().skew
}

// HopID 本节点的 hop 标识
func (s *Synchronizer) HopID() int {
	return s.cfg.HopID
}

// Range 位置范围
func (s *Synchronizer) Range() types.Range {
	return s.cfg.Range
}

// Links 当前打开的链路数
func (s *Synchronizer) Links() int {
	return int(s.linkCount.Load())
}

func (s *Synchronizer) publish() {
	s.current.Store(&snapshot{
		vector:     s.vector.Clone(),
		timeOrigin: s.timeOrigin,
		skew:       s.skew,
	})
}

// ============================================================================
//                              公共操作
// ============================================================================

// Update 用部分向量更新本地时间线
//
// 没有实际变化时不广播、不发出事件。
func (s *Synchronizer) Update(ctx context.Context, partial types.PartialVector) error {
	reply := make(chan error, 1)
	if err := s.post(func() { reply <- s.applyUpdate(partial) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// AddLink 接管一条已打开的通道
//
// 同一 clientID 已有链路时旧链路被关闭。release 在链路移除后调用，可为 nil。
func (s *Synchronizer) AddLink(clientID string, role types.Role, channel interfaces.DataChannel, conn interfaces.PeerConnection, release func()) error {
	l := link.New(clientID, role, channel, conn, offset.NewEstimator(s.cfg.SampleSize, s.cfg.RTTWindow))
	l.Release = release
	if err := s.post(func() { s.addLink(l) }); err != nil {
		_ = l.Close()
		if release != nil {
			release()
		}
		return err
	}
	return nil
}

// ============================================================================
//                              循环内处理
// ============================================================================

func (s *Synchronizer) applyUpdate(partial types.PartialVector) error {
	now := s.now()
	next, changed := kinematics.FilterUpdate(s.vector.TimingStateVector, partial, now, kinematics.Extrapolate)
	if !changed {
		logger.Debug("忽略无变化的更新")
		return nil
	}
	next.Position = s.cfg.Range.Clamp(next.Position)

	s.vector = types.ExtendedVector{
		TimingStateVector: next,
		Hops:              s.vector.Hops,
		Version:           s.vector.Version + 1,
	}
	s.publish()

	msg := link.Update{Vector: s.vector.Clone(), Origin: s.timeOrigin, Timestamp: now}
	for _, l := range s.links {
		s.send(l, msg)
	}
	s.metrics.UpdatesBroadcast.Add(float64(len(s.links)))
	s.emitChange()
	return nil
}

func (s *Synchronizer) addLink(l *link.PeerLink) {
	if old, ok := s.links[l.ClientID]; ok {
		s.dropLink(old)
	}
	s.links[l.ClientID] = l
	s.linkCount.Store(int32(len(s.links)))
	s.metrics.LinksOpen.Set(float64(len(s.links)))

	logger.Info("链路已打开", "clientID", log.TruncateID(l.ClientID, 8), "role", l.Role.String(), "links", len(s.links))

	s.wg.Add(2)
	go s.readLoop(l)
	go s.pingLoop(l)

	if len(s.links) == 1 {
		s.send(l, link.Request{})
	}
}

func (s *Synchronizer) removeLink(l *link.PeerLink, err error) {
	if s.links[l.ClientID] != l {
		return
	}
	logger.Info("链路已关闭", "clientID", log.TruncateID(l.ClientID, 8), "error", err)
	s.dropLink(l)
	s.recomputeSkew()
}

func (s *Synchronizer) dropLink(l *link.PeerLink) {
	delete(s.links, l.ClientID)
	s.linkCount.Store(int32(len(s.links)))
	s.metrics.LinksOpen.Set(float64(len(s.links)))
	if err := l.Close(); err != nil {
		logger.Debug("关闭链路失败", "clientID", log.TruncateID(l.ClientID, 8), "error", err)
	}
	if l.Release != nil {
		l.Release()
	}
}

func (s *Synchronizer) closeAllLinks() {
	for _, l := range s.links {
		s.dropLink(l)
	}
}

func (s *Synchronizer) handleMessage(l *link.PeerLink, msg link.Message) {
	if s.links[l.ClientID] != l {
		return
	}
	switch m := msg.(type) {
	case link.Request:
		s.send(l, link.Update{Vector: s.vector.Clone(), Origin: s.timeOrigin, Timestamp: s.now()})
	case link.Pong:
		if est, ok := l.Estimator.RecordPong(m.Time, s.now()); ok {
			logger.Debug("偏移估计", "clientID", log.TruncateID(l.ClientID, 8), "offset", est, "rtt", l.Estimator.MinRTT())
			s.recomputeSkew()
		}
	case link.Update:
		s.merge(l, m)
	}
}

func (s *Synchronizer) ping(l *link.PeerLink) {
	if s.links[l.ClientID] != l {
		return
	}
	l.Estimator.RecordPing(s.now())
	s.send(l, link.Ping{})
}

// send 发送失败只记录日志，读循环会发现链路关闭
func (s *Synchronizer) send(l *link.PeerLink, msg link.Message) {
	if err := l.Send(msg); err != nil {
		logger.Debug("链路发送失败", "clientID", log.TruncateID(l.ClientID, 8), "error", err)
	}
}

func (s *Synchronizer) emitChange() {
	if err := s.changes.Emit(types.EvtChange{Vector: s.vector.TimingStateVector}); err != nil {
		logger.Debug("发送 change 事件失败", "error", err)
	}
}

func (s *Synchronizer) now() float64 {
	return seconds(s.clock.Now())
}

// ============================================================================
//                              链路 goroutine
// ============================================================================

// readLoop 读取链路消息；ping 在此直接应答以减小偏移误差
func (s *Synchronizer) readLoop(l *link.PeerLink) {
	defer s.wg.Done()

	err := l.Run(func(msg link.Message) {
		if _, ok := msg.(link.Ping); ok {
			s.send(l, link.Pong{Time: s.now()})
			return
		}
		_ = s.post(func() { s.handleMessage(l, msg) })
	})
	_ = s.post(func() { s.removeLink(l, err) })
}

func (s *Synchronizer) pingLoop(l *link.PeerLink) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.post(func() { s.ping(l) }); err != nil {
				return
			}
		case <-l.Closed():
			return
		case <-s.stop:
			return
		}
	}
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}
