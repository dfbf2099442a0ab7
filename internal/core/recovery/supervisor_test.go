package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// recordingClock 记录退避时长并立即触发
type recordingClock struct {
	*clock.Mock

	mu     sync.Mutex
	delays []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Mock: clock.NewMock()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.Mock.Now()
	return ch
}

func (c *recordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// mockConn 按脚本返回帧，读完后返回 readErr
type mockConn struct {
	frames  [][]byte
	readErr error

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (c *mockConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil, c.readErr
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}

func (c *mockConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// blockingConn 阻塞读直到关闭
type blockingConn struct {
	mockConn
	closedCh chan struct{}
	once     sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{closedCh: make(chan struct{})}
}

func (c *blockingConn) ReadMessage() ([]byte, error) {
	<-c.closedCh
	return nil, errors.New("closed")
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closedCh) })
	return nil
}

// mockDialer 依次调用 dial
type mockDialer struct {
	mu    sync.Mutex
	calls int
	dial  func(n int) (interfaces.RelayConn, error)
}

func (d *mockDialer) Dial(_ context.Context, _ string) (interfaces.RelayConn, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	return d.dial(n)
}

func (d *mockDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// TestSupervisor_BackoffThenFatal 测试退避序列与致命错误
func TestSupervisor_BackoffThenFatal(t *testing.T) {
	dialErr := errors.New("connection refused")
	dialer := &mockDialer{dial: func(int) (interfaces.RelayConn, error) { return nil, dialErr }}
	clk := newRecordingClock()

	fatal := make(chan error, 1)
	var states []types.ReadyState
	sup := NewSupervisor(DefaultConfig(), "ws://relay", dialer, clk, Handlers{
		OnStateChange: func(s types.ReadyState) { states = append(states, s) },
		OnFatal:       func(err error) { fatal <- err },
	})
	require.NoError(t, sup.Start(context.Background()))

	select {
	case err := <-fatal:
		assert.True(t, err == dialErr, "fourth error is propagated unchanged")
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal error")
	}

	assert.Equal(t, []time.Duration{1 * time.Second, 4 * time.Second, 9 * time.Second}, clk.Delays())
	assert.Equal(t, 4, dialer.Calls())
	assert.Equal(t, types.ReadyStateClosed, sup.ReadyState())
	assert.ErrorIs(t, sup.Err(), dialErr)
	assert.Equal(t, []types.ReadyState{types.ReadyStateClosed}, states)

	// closed 为终态
	assert.ErrorIs(t, sup.Start(context.Background()), ErrClosed)
	require.NoError(t, sup.Stop())
	assert.Equal(t, types.ReadyStateClosed, sup.ReadyState())
}

// TestSupervisor_ActivityResetsAttempts 测试收到消息后重置计数
func TestSupervisor_ActivityResetsAttempts(t *testing.T) {
	initFrame, err := wire.Encode(wire.Init{Client: wire.Client{ID: "me"}})
	require.NoError(t, err)

	final := newBlockingConn()
	dialer := &mockDialer{dial: func(n int) (interfaces.RelayConn, error) {
		if n >= 6 {
			return final, nil
		}
		return &mockConn{frames: [][]byte{initFrame}, readErr: errors.New("reset by peer")}, nil
	}}
	clk := newRecordingClock()

	var mu sync.Mutex
	var received []wire.Message
	disconnects := 0
	sup := NewSupervisor(DefaultConfig(), "ws://relay", dialer, clk, Handlers{
		OnMessage: func(m wire.Message) {
			mu.Lock()
			received = append(received, m)
			mu.Unlock()
		},
		OnDisconnect: func(error) {
			mu.Lock()
			disconnects++
			mu.Unlock()
		},
		OnFatal: func(err error) { t.Errorf("unexpected fatal: %v", err) },
	})
	require.NoError(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool { return dialer.Calls() >= 6 }, 2*time.Second, 5*time.Millisecond)

	for _, d := range clk.Delays() {
		assert.Equal(t, time.Second, d, "attempt counter resets after each message")
	}
	assert.Equal(t, types.ReadyStateOpen, sup.ReadyState())
	assert.NoError(t, sup.Err())

	require.Eventually(t, func() bool {
		return sup.Send(wire.Termination{Client: wire.Client{ID: "peer"}}) == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Stop())
	assert.Equal(t, types.ReadyStateClosed, sup.ReadyState())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 5)
	assert.Equal(t, 5, disconnects)
}

// TestSupervisor_SendWithoutConnection 测试未连接时发送
func TestSupervisor_SendWithoutConnection(t *testing.T) {
	sup := NewSupervisor(nil, "ws://relay", &mockDialer{}, clock.NewMock(), Handlers{})
	assert.ErrorIs(t, sup.Send(wire.Termination{Client: wire.Client{ID: "x"}}), ErrNotConnected)
	assert.Equal(t, types.ReadyStateConnecting, sup.ReadyState())

	require.NoError(t, sup.Stop())
	assert.ErrorIs(t, sup.Start(context.Background()), ErrClosed)
}

// TestConfig_Delay 测试退避公式
func TestConfig_Delay(t *testing.T) {
	cfg := &Config{BaseDelay: 500 * time.Millisecond}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4500*time.Millisecond, cfg.Delay(3))
}
