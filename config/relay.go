package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RelayConfig 中继配置
type RelayConfig struct {
	// URL 完整的中继地址，构造参数为空时使用
	URL string `json:"url,omitempty"`

	// BaseURL 构造参数是标识符时，与标识符拼接成中继地址
	// 默认值: ws://127.0.0.1:7070
	BaseURL string `json:"base_url"`

	// HeartbeatInterval WebSocket 心跳间隔，同时决定终止宽限期
	// 默认值: 10s
	HeartbeatInterval Duration `json:"heartbeat_interval"`

	// HandshakeTimeout WebSocket 握手与 WebRTC 协商超时
	// 默认值: 10s
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultRelayConfig 返回默认的中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BaseURL:           "ws://127.0.0.1:7070",
		HeartbeatInterval: Duration(10 * time.Second),
		HandshakeTimeout:  Duration(10 * time.Second),
	}
}

// Validate 验证中继配置
func (c *RelayConfig) Validate() error {
	def := DefaultRelayConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if err := checkRelayURL(c.BaseURL); err != nil {
		return fmt.Errorf("%w: relay base url: %v", ErrInvalidConfig, err)
	}
	if c.URL != "" {
		if err := checkRelayURL(c.URL); err != nil {
			return fmt.Errorf("%w: relay url: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ResolveURL 把标识符或 URL 解析为中继地址
//
//   - 空字符串: 使用 URL 字段
//   - ws:// 或 wss:// 地址: 原样使用
//   - 其他: 作为路径拼接到 BaseURL 之后
func (c RelayConfig) ResolveURL(idOrURL string) (string, error) {
	if idOrURL == "" {
		if c.URL == "" {
			return "", fmt.Errorf("%w: no relay url or identifier", ErrInvalidConfig)
		}
		return c.URL, nil
	}
	if strings.Contains(idOrURL, "://") {
		if err := checkRelayURL(idOrURL); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return idOrURL, nil
	}
	joined, err := url.JoinPath(c.BaseURL, url.PathEscape(idOrURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return joined, nil
}

func checkRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
