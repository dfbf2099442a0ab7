package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-timingmesh/internal/core/eventbus"
	"github.com/dep2p/go-timingmesh/internal/core/link"
	"github.com/dep2p/go-timingmesh/internal/core/metrics"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

var errPipeClosed = errors.New("pipe closed")

// pipeChannel 内存中成对的数据通道
type pipeChannel struct {
	in     chan []byte
	peer   *pipeChannel
	closed chan struct{}
	once   sync.Once
}

func newPipe() (*pipeChannel, *pipeChannel) {
	a := &pipeChannel{in: make(chan []byte, 64), closed: make(chan struct{})}
	b := &pipeChannel{in: make(chan []byte, 64), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *pipeChannel) Label() string { return "timing" }
func (c *pipeChannel) OnOpen(f func()) { f() }

func (c *pipeChannel) Send(data []byte) error {
	select {
	case <-c.closed:
		return errPipeClosed
	case <-c.peer.closed:
		return errPipeClosed
	case c.peer.in <- append([]byte(nil), data...):
		return nil
	}
}

func (c *pipeChannel) Recv() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errPipeClosed
	case <-c.peer.closed:
		return nil, errPipeClosed
	}
}

func (c *pipeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// mockConn 只实现 Close
type mockConn struct {
	interfaces.PeerConnection
}

func (mockConn) Close() error { return nil }

// remotePeer 测试端，扮演对端
type remotePeer struct {
	t  *testing.T
	ch *pipeChannel
}

func (r *remotePeer) send(msg link.Message) {
	r.t.Helper()
	data, err := link.Encode(msg)
	require.NoError(r.t, err)
	require.NoError(r.t, r.ch.Send(data))
}

// next 读取下一条非 ping 消息
func (r *remotePeer) next() link.Message {
	r.t.Helper()
	for {
		select {
		case data := <-r.ch.in:
			msg, err := link.Decode(data)
			require.NoError(r.t, err)
			if _, ok := msg.(link.Ping); ok {
				continue
			}
			return msg
		case <-time.After(time.Second):
			r.t.Fatal("no message from synchronizer")
			return nil
		}
	}
}

// nextPing 读取下一条 ping，其他消息被丢弃
func (r *remotePeer) nextPing() {
	r.t.Helper()
	for {
		select {
		case data := <-r.ch.in:
			msg, err := link.Decode(data)
			require.NoError(r.t, err)
			if _, ok := msg.(link.Ping); ok {
				return
			}
		case <-time.After(time.Second):
			r.t.Fatal("no ping from synchronizer")
		}
	}
}

func (r *remotePeer) assertSilent() {
	r.t.Helper()
	select {
	case data := <-r.ch.in:
		r.t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

type fixture struct {
	sync    *Synchronizer
	clock   *clock.Mock
	metrics *metrics.Metrics
	changes interfaces.Subscription
	adjusts interfaces.Subscription
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	clk := clock.NewMock()
	clk.Add(1000 * time.Second)
	bus := eventbus.NewBus()
	m := metrics.New(nil)

	changes, err := bus.Subscribe(new(types.EvtChange), eventbus.BufSize(64))
	require.NoError(t, err)
	adjusts, err := bus.Subscribe(new(types.EvtAdjust), eventbus.BufSize(64))
	require.NoError(t, err)

	if cfg.PingInterval == 0 {
		// ping 由测试显式触发
		cfg.PingInterval = time.Hour
	}
	if cfg.HopID == 0 {
		cfg.HopID = 7
	}

	s, err := New(cfg, clk, bus, m)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	return &fixture{sync: s, clock: clk, metrics: m, changes: changes, adjusts: adjusts}
}

// connect 添加一条链路并消费首条 request
func (f *fixture) connect(t *testing.T, clientID string) *remotePeer {
	t.Helper()
	local, remote := newPipe()
	require.NoError(t, f.sync.AddLink(clientID, types.RoleActive, local, mockConn{}, nil))
	require.Eventually(t, func() bool { return f.sync.Links() >= 1 }, time.Second, 5*time.Millisecond)
	return &remotePeer{t: t, ch: remote}
}

func (f *fixture) triggerPing(t *testing.T, clientID string) {
	t.Helper()
	require.NoError(t, f.sync.post(func() {
		if l, ok := f.sync.links[clientID]; ok {
			f.sync.ping(l)
		}
	}))
}

func nextChange(t *testing.T, sub interfaces.Subscription) types.TimingStateVector {
	t.Helper()
	select {
	case evt := <-sub.Out():
		return evt.(types.EvtChange).Vector
	case <-time.After(time.Second):
		t.Fatal("no change event")
		return types.TimingStateVector{}
	}
}

func assertNoEvent(t *testing.T, sub interfaces.Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Out():
		t.Fatalf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// ============================================================================
//                              测试
// ============================================================================

// TestSynchronizer_InitialState 测试初始向量与 timeOrigin
func TestSynchronizer_InitialState(t *testing.T) {
	f := newFixture(t, Config{})

	v := f.sync.Vector()
	assert.Equal(t, 1000.0, f.sync.TimeOrigin())
	assert.Equal(t, 1000.0, v.Timestamp)
	assert.Equal(t, []int{7}, v.Hops)
	assert.Equal(t, 0, v.Version)
	assert.Equal(t, 0.0, f.sync.Skew())
}

// TestSynchronizer_FirstLinkSendsRequest 测试首条链路发送 request
func TestSynchronizer_FirstLinkSendsRequest(t *testing.T) {
	f := newFixture(t, Config{})

	first := f.connect(t, "bbb")
	assert.Equal(t, link.Request{}, first.next())

	local, remote := newPipe()
	require.NoError(t, f.sync.AddLink("ccc", types.RolePassive, local, mockConn{}, nil))
	require.Eventually(t, func() bool { return f.sync.Links() == 2 }, time.Second, 5*time.Millisecond)
	(&remotePeer{t: t, ch: remote}).assertSilent()

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LinksOpen))
}

// TestSynchronizer_UpdateBroadcasts 测试更新广播到所有链路
func TestSynchronizer_UpdateBroadcasts(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	f.clock.Add(2 * time.Second)
	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{
		Position: types.Float(5),
		Velocity: types.Float(1),
	}))

	msg := a.next()
	u, ok := msg.(link.Update)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, 5.0, u.Vector.Position)
	assert.Equal(t, 1.0, u.Vector.Velocity)
	assert.Equal(t, 1002.0, u.Vector.Timestamp)
	assert.Equal(t, 1, u.Vector.Version)
	assert.Equal(t, []int{7}, u.Vector.Hops)
	assert.Equal(t, 1000.0, u.Origin)

	change := nextChange(t, f.changes)
	assert.Equal(t, 5.0, change.Position)
	assert.Equal(t, 1, f.sync.Vector().Version)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UpdatesBroadcast))
}

// TestSynchronizer_NoOpUpdate 测试无变化的更新不广播也不发事件
func TestSynchronizer_NoOpUpdate(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{Position: types.Float(0)}))
	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{}))

	a.assertSilent()
	assertNoEvent(t, f.changes)
	assert.Equal(t, 0, f.sync.Vector().Version)
}

// TestSynchronizer_UpdateClampsPosition 测试位置限制在范围内
func TestSynchronizer_UpdateClampsPosition(t *testing.T) {
	f := newFixture(t, Config{Range: types.Range{Start: 0, End: 10}})

	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{Position: types.Float(42)}))
	assert.Equal(t, 10.0, f.sync.Vector().Position)

	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{Position: types.Float(-3)}))
	assert.Equal(t, 0.0, f.sync.Vector().Position)
}

// TestSynchronizer_RespondsToRequest 测试 request 立即回复当前向量
func TestSynchronizer_RespondsToRequest(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	a.send(link.Request{})
	u, ok := a.next().(link.Update)
	require.True(t, ok)
	assert.Equal(t, f.sync.Vector(), u.Vector)
	assert.Equal(t, 1000.0, u.Origin)
}

// TestSynchronizer_RespondsToPing 测试 ping 应答携带本地时钟
func TestSynchronizer_RespondsToPing(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	a.send(link.Ping{})
	assert.Equal(t, link.Pong{Time: 1000}, a.next())
}

// TestSynchronizer_RemoteWins 测试 origin 更小的远端向量被采纳
func TestSynchronizer_RemoteWins(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	remote := types.ExtendedVector{
		TimingStateVector: types.TimingStateVector{Position: 3, Velocity: 1, Timestamp: 990},
		Hops:              []int{11},
		Version:           4,
	}
	a.send(link.Update{Vector: remote, Origin: 900, Timestamp: 1000})

	change := nextChange(t, f.changes)
	assert.Equal(t, remote.TimingStateVector, change)

	v := f.sync.Vector()
	assert.Equal(t, []int{11, 7}, v.Hops)
	assert.Equal(t, 4, v.Version)
	assert.Equal(t, 900.0, f.sync.TimeOrigin())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UpdatesReceived.WithLabelValues(metrics.ResultAdopted)))
	a.assertSilent()
}

// TestSynchronizer_LocalWins 测试本地 origin 更小时回发纠正
func TestSynchronizer_LocalWins(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	require.NoError(t, f.sync.Update(context.Background(), types.PartialVector{Velocity: types.Float(2)}))
	a.next()
	nextChange(t, f.changes)
	before := f.sync.Vector()

	f.clock.Add(3 * time.Second)
	a.send(link.Update{
		Vector: types.ExtendedVector{
			TimingStateVector: types.TimingStateVector{Position: 50, Timestamp: 1003},
			Hops:              []int{11},
		},
		Origin:    1500,
		Timestamp: 1003,
	})

	u, ok := a.next().(link.Update)
	require.True(t, ok)
	assert.Equal(t, 1000.0, u.Origin)
	assert.Equal(t, 1003.0, u.Vector.Timestamp)
	assert.Equal(t, 6.0, u.Vector.Position, "re-extrapolated to now")
	assert.Equal(t, before.Hops, u.Vector.Hops)

	assert.Equal(t, before, f.sync.Vector())
	assertNoEvent(t, f.changes)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UpdatesReceived.WithLabelValues(metrics.ResultRejected)))
}

// TestSynchronizer_LocalWinsBroadcastsToAllLinks 测试本地胜出时纠正广播到全部链路
func TestSynchronizer_LocalWinsBroadcastsToAllLinks(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	local, remote := newPipe()
	require.NoError(t, f.sync.AddLink("bbb", types.RolePassive, local, mockConn{}, nil))
	require.Eventually(t, func() bool { return f.sync.Links() == 2 }, time.Second, 5*time.Millisecond)
	b := &remotePeer{t: t, ch: remote}

	a.send(link.Update{
		Vector: types.ExtendedVector{
			TimingStateVector: types.TimingStateVector{Position: 9, Timestamp: 1000},
			Hops:              []int{11},
		},
		Origin: 2000,
	})

	for _, peer := range []*remotePeer{a, b} {
		u, ok := peer.next().(link.Update)
		require.True(t, ok)
		assert.Equal(t, 1000.0, u.Origin)
		assert.Equal(t, []int{7}, u.Vector.Hops)
		assert.Equal(t, 0.0, u.Vector.Position)
	}
	assertNoEvent(t, f.changes)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.UpdatesBroadcast))
}

// TestSynchronizer_EqualOriginTimestamp 测试 origin 相同时按时间戳判定
func TestSynchronizer_EqualOriginTimestamp(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	// 本地时间戳 1000 严格大于 999：本地胜出
	a.send(link.Update{
		Vector: types.ExtendedVector{TimingStateVector: types.TimingStateVector{Position: 1, Timestamp: 999}, Hops: []int{11}},
		Origin: 1000,
	})
	_, ok := a.next().(link.Update)
	require.True(t, ok)
	assertNoEvent(t, f.changes)

	// 时间戳相等：远端胜出
	a.send(link.Update{
		Vector: types.ExtendedVector{TimingStateVector: types.TimingStateVector{Position: 2, Timestamp: 1000}, Hops: []int{11}},
		Origin: 1000,
	})
	assert.Equal(t, 2.0, nextChange(t, f.changes).Position)
	assert.Equal(t, []int{11, 7}, f.sync.Vector().Hops)
}

// TestSynchronizer_OffsetAndSkew 测试偏移估计、时间戳换算与 adjust 事件
func TestSynchronizer_OffsetAndSkew(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	// 对端更权威
	a.send(link.Update{
		Vector: types.ExtendedVector{TimingStateVector: types.TimingStateVector{Timestamp: 1000}, Hops: []int{11}},
		Origin: 900,
	})
	nextChange(t, f.changes)

	// ping 在 1000 发出，pong 在 1000.2 收到，对端时钟读数 1005.1
	f.triggerPing(t, "aaa")
	a.nextPing()
	f.clock.Add(200 * time.Millisecond)
	a.send(link.Pong{Time: 1005.1})

	select {
	case evt := <-f.adjusts.Out():
		assert.InDelta(t, 5.0, evt.(types.EvtAdjust).Skew, 1e-6)
	case <-time.After(time.Second):
		t.Fatal("no adjust event")
	}
	assert.InDelta(t, 5.0, f.sync.Skew(), 1e-6)
	assert.InDelta(t, 5.0, testutil.ToFloat64(f.metrics.Skew), 1e-6)

	// 远端时间戳按偏移换算到本地时钟
	a.send(link.Update{
		Vector: types.ExtendedVector{TimingStateVector: types.TimingStateVector{Position: 8, Timestamp: 1010}, Hops: []int{11}, Version: 2},
		Origin: 900,
	})
	change := nextChange(t, f.changes)
	assert.InDelta(t, 1005.0, change.Timestamp, 1e-6)
	assert.Equal(t, 8.0, change.Position)
}

// TestSynchronizer_SkewZeroWhenLocalIsAuthority 测试本节点最权威时 skew 为 0
func TestSynchronizer_SkewZeroWhenLocalIsAuthority(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	a.send(link.Update{
		Vector: types.ExtendedVector{TimingStateVector: types.TimingStateVector{Timestamp: 1000}, Hops: []int{11}},
		Origin: 2000,
	})
	a.next()

	f.triggerPing(t, "aaa")
	a.nextPing()
	a.send(link.Pong{Time: 1003})

	assertNoEvent(t, f.adjusts)
	assert.Equal(t, 0.0, f.sync.Skew())
}

// TestSynchronizer_PingTicker 测试按间隔发送 ping
func TestSynchronizer_PingTicker(t *testing.T) {
	f := newFixture(t, Config{PingInterval: time.Second})
	a := f.connect(t, "aaa")
	a.next()

	require.Eventually(t, func() bool {
		f.clock.Add(time.Second)
		for {
			select {
			case data := <-a.ch.in:
				if msg, err := link.Decode(data); err == nil {
					if _, ok := msg.(link.Ping); ok {
						return true
					}
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}

// TestSynchronizer_LinkClosed 测试对端关闭后链路被移除
func TestSynchronizer_LinkClosed(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	require.NoError(t, a.ch.Close())
	require.Eventually(t, func() bool { return f.sync.Links() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.LinksOpen))
}

// TestSynchronizer_LinkClosedReleases 测试链路移除后调用 release
func TestSynchronizer_LinkClosedReleases(t *testing.T) {
	f := newFixture(t, Config{})

	released := make(chan struct{})
	local, remote := newPipe()
	require.NoError(t, f.sync.AddLink("aaa", types.RoleActive, local, mockConn{}, func() { close(released) }))
	a := &remotePeer{t: t, ch: remote}
	a.next()

	require.NoError(t, a.ch.Close())
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release not called")
	}
	assert.Equal(t, 0, f.sync.Links())
}

// TestSynchronizer_ReplacesLink 测试同一 clientID 的新链路替换旧链路
func TestSynchronizer_ReplacesLink(t *testing.T) {
	f := newFixture(t, Config{})
	first := f.connect(t, "aaa")
	first.next()

	local, remote := newPipe()
	require.NoError(t, f.sync.AddLink("aaa", types.RoleActive, local, mockConn{}, nil))
	second := &remotePeer{t: t, ch: remote}
	assert.Equal(t, link.Request{}, second.next(), "replacement is the only link")

	select {
	case <-first.ch.peer.closed:
	case <-time.After(time.Second):
		t.Fatal("old link not closed")
	}
	assert.Equal(t, 1, f.sync.Links())
}

// TestSynchronizer_Stop 测试停止后关闭链路并拒绝更新
func TestSynchronizer_Stop(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.connect(t, "aaa")
	a.next()

	require.NoError(t, f.sync.Stop())
	assert.ErrorIs(t, f.sync.Stop(), ErrClosed)

	select {
	case <-a.ch.peer.closed:
	case <-time.After(time.Second):
		t.Fatal("link not closed")
	}

	err := f.sync.Update(context.Background(), types.PartialVector{Position: types.Float(1)})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.sync.AddLink("bbb", types.RoleActive, &pipeChannel{closed: make(chan struct{})}, mockConn{}, nil), ErrClosed)
}

// TestSynchronizer_StopWithoutStart 测试未启动时停止
func TestSynchronizer_StopWithoutStart(t *testing.T) {
	bus := eventbus.NewBus()
	s, err := New(Config{}, clock.NewMock(), bus, nil)
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	assert.NotZero(t, s.HopID())
}
