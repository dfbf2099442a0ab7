package config

import (
	"fmt"
	"strings"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "TIMINGMESH_"

// 支持的环境变量
const (
	EnvRelayURL     = EnvPrefix + "RELAY_URL"
	EnvRelayBaseURL = EnvPrefix + "RELAY_BASE_URL"
	EnvHeartbeat    = EnvPrefix + "HEARTBEAT"
	EnvICEServers   = EnvPrefix + "ICE_SERVERS"
)

// LookupFunc 与 os.LookupEnv 签名一致
type LookupFunc func(key string) (string, bool)

// ApplyEnv 用环境变量覆盖配置，随后重新验证
//
// TIMINGMESH_ICE_SERVERS 以逗号分隔。
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvRelayURL); ok && v != "" {
		c.Relay.URL = v
	}
	if v, ok := lookup(EnvRelayBaseURL); ok && v != "" {
		c.Relay.BaseURL = v
	}
	if v, ok := lookup(EnvHeartbeat); ok && v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvHeartbeat, err)
		}
		c.Relay.HeartbeatInterval = d
	}
	if v, ok := lookup(EnvICEServers); ok && v != "" {
		var servers []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
		c.WebRTC.ICEServers = servers
	}
	return c.Validate()
}
