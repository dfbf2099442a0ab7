package config

import (
	"fmt"

	"github.com/pion/stun"
)

// DefaultICEServer 默认的 STUN 服务器
const DefaultICEServer = "stun:stun.l.google.com:19302"

// WebRTCConfig 点对点传输配置
type WebRTCConfig struct {
	// ICEServers STUN/TURN 服务器 URI
	// 默认值: ["stun:stun.l.google.com:19302"]
	ICEServers []string `json:"ice_servers"`

	// Label 数据通道标签
	// 默认值: timing
	Label string `json:"label"`
}

// DefaultWebRTCConfig 返回默认的传输配置
func DefaultWebRTCConfig() WebRTCConfig {
	return WebRTCConfig{
		ICEServers: []string{DefaultICEServer},
		Label:      "timing",
	}
}

// Validate 验证传输配置
func (c *WebRTCConfig) Validate() error {
	def := DefaultWebRTCConfig()
	if len(c.ICEServers) == 0 {
		c.ICEServers = def.ICEServers
	}
	if c.Label == "" {
		c.Label = def.Label
	}
	for _, raw := range c.ICEServers {
		if _, err := stun.ParseURI(raw); err != nil {
			return fmt.Errorf("%w: ice server %q: %v", ErrInvalidConfig, raw, err)
		}
	}
	return nil
}
