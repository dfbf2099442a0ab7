package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEcho 启动回显文本帧的 WebSocket 服务
func startEcho(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// TestDialer_RoundTrip 测试写入的帧被原样读回
func TestDialer_RoundTrip(t *testing.T) {
	url := startEcho(t)

	conn, err := NewDialer(DefaultConfig(), clock.New()).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"termination","client":{"id":"a"}}`)))
	data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"termination","client":{"id":"a"}}`, string(data))
}

// TestDialer_MockClock 测试注入模拟时钟时读写截止时间仍按真实时间计算
func TestDialer_MockClock(t *testing.T) {
	url := startEcho(t)

	conn, err := NewDialer(DefaultConfig(), clock.NewMock()).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"request","client":{"id":"b"}}`)))
	data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"request","client":{"id":"b"}}`, string(data))
}

// TestConn_Close 测试关闭后读写返回 ErrConnClosed
func TestConn_Close(t *testing.T) {
	url := startEcho(t)

	conn, err := NewDialer(DefaultConfig(), clock.New()).Dial(context.Background(), url)
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage()
		readErr <- err
	}()

	require.NoError(t, conn.Close())
	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not return after Close")
	}

	assert.ErrorIs(t, conn.WriteMessage([]byte("x")), ErrConnClosed)
	assert.NoError(t, conn.Close())
}

// TestDialer_Unreachable 测试拨号失败返回包装错误
func TestDialer_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	_, err := NewDialer(Config{HandshakeTimeout: time.Second}, nil).Dial(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial relay")
}

// TestNewDialer_Defaults 测试零值配置被修正
func TestNewDialer_Defaults(t *testing.T) {
	d := NewDialer(Config{}, nil)
	assert.Equal(t, DefaultConfig(), d.cfg)
	assert.NotNil(t, d.clock)
}
