package config

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Relay.HeartbeatInterval.Duration())
	assert.Equal(t, 10*time.Second, cfg.Relay.HandshakeTimeout.Duration())
	assert.Equal(t, 4, cfg.Recovery.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Recovery.BaseDelay.Duration())
	assert.Equal(t, time.Second, cfg.Offset.PingInterval.Duration())
	assert.Equal(t, 5, cfg.Offset.SampleSize)
	assert.Equal(t, 60, cfg.Offset.RTTWindow)
	assert.Equal(t, []string{DefaultICEServer}, cfg.WebRTC.ICEServers)
	assert.Equal(t, "timing", cfg.WebRTC.Label)
	assert.True(t, math.IsInf(cfg.Timeline.Start(), -1))
	assert.True(t, math.IsInf(cfg.Timeline.End(), 1))
}

// TestConfig_ValidateFillsZeroValues 测试零值修正为默认值
func TestConfig_ValidateFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, NewConfig(), cfg)
}

// TestConfig_ValidateRejects 测试无效配置
func TestConfig_ValidateRejects(t *testing.T) {
	start, end := 10.0, 5.0

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad ice uri", func(c *Config) { c.WebRTC.ICEServers = []string{"http://example.org"} }},
		{"bad relay scheme", func(c *Config) { c.Relay.BaseURL = "http://example.org" }},
		{"relay without host", func(c *Config) { c.Relay.URL = "ws://" }},
		{"negative attempts", func(c *Config) { c.Recovery.MaxAttempts = -1 }},
		{"window below samples", func(c *Config) { c.Offset.SampleSize = 10; c.Offset.RTTWindow = 3 }},
		{"inverted timeline", func(c *Config) { c.Timeline.StartPosition = &start; c.Timeline.EndPosition = &end }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

// TestFromJSON 测试 JSON 加载
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"relay": {"base_url": "wss://relay.example.org", "heartbeat_interval": "5s"},
		"recovery": {"base_delay": 500000000},
		"webrtc": {"ice_servers": ["stun:stun.example.org:3478", "turn:turn.example.org:3478?transport=udp"]},
		"timeline": {"start_position": 0, "end_position": 120}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.org", cfg.Relay.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Relay.HeartbeatInterval.Duration())
	assert.Equal(t, 10*time.Second, cfg.Relay.HandshakeTimeout.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.Recovery.BaseDelay.Duration())
	assert.Len(t, cfg.WebRTC.ICEServers, 2)
	assert.Equal(t, 0.0, cfg.Timeline.Start())
	assert.Equal(t, 120.0, cfg.Timeline.End())

	_, err = FromJSON([]byte(`{"relay": {"heartbeat_interval": "soon"}}`))
	assert.Error(t, err)
}

// TestConfig_ToJSON 测试序列化后可重新加载
func TestConfig_ToJSON(t *testing.T) {
	cfg := NewConfig()
	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"heartbeat_interval": "10s"`)

	loaded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

// TestConfig_Clone 测试深拷贝
func TestConfig_Clone(t *testing.T) {
	start := 1.0
	cfg := NewConfig()
	cfg.Timeline.StartPosition = &start

	cloned := cfg.Clone()
	cloned.WebRTC.ICEServers[0] = "stun:other.example.org"
	*cloned.Timeline.StartPosition = 2

	assert.Equal(t, DefaultICEServer, cfg.WebRTC.ICEServers[0])
	assert.Equal(t, 1.0, cfg.Timeline.Start())
}

// TestRelayConfig_ResolveURL 测试标识符与 URL 解析
func TestRelayConfig_ResolveURL(t *testing.T) {
	cfg := DefaultRelayConfig()
	cfg.BaseURL = "wss://relay.example.org/mesh"

	got, err := cfg.ResolveURL("demo")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.org/mesh/demo", got)

	got, err = cfg.ResolveURL("ws://127.0.0.1:9000/room")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9000/room", got)

	_, err = cfg.ResolveURL("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.URL = "ws://127.0.0.1:9000/default"
	got, err = cfg.ResolveURL("")
	require.NoError(t, err)
	assert.Equal(t, cfg.URL, got)

	_, err = cfg.ResolveURL("ftp://example.org")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestConfig_ApplyEnv 测试环境变量覆盖
func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRelayURL:   "ws://127.0.0.1:7070/env",
		EnvHeartbeat:  "3s",
		EnvICEServers: "stun:a.example.org:3478, stun:b.example.org:3478",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := NewConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "ws://127.0.0.1:7070/env", cfg.Relay.URL)
	assert.Equal(t, 3*time.Second, cfg.Relay.HeartbeatInterval.Duration())
	assert.Equal(t, []string{"stun:a.example.org:3478", "stun:b.example.org:3478"}, cfg.WebRTC.ICEServers)

	env[EnvHeartbeat] = "later"
	assert.ErrorIs(t, NewConfig().ApplyEnv(lookup), ErrInvalidConfig)
}

// TestDuration_UnmarshalText 测试时长解析
func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, 1500*time.Millisecond, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte("1000")))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("abc")))
}
