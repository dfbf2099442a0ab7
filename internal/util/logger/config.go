package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量
const (
	EnvLevel     = "TIMINGMESH_LOG_LEVEL"
	EnvFormat    = "TIMINGMESH_LOG_FORMAT"
	EnvAddSource = "TIMINGMESH_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
//
// 级别可以在运行时通过 SetLevel 调整，已创建的 Logger 立即生效。
type Config struct {
	mu              sync.RWMutex
	defaultLevel    slog.Level
	subsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// NewConfig 创建配置，默认 info 级别、文本格式
func NewConfig() *Config {
	return &Config{
		defaultLevel:    slog.LevelInfo,
		subsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
}

// ConfigFromEnv 从环境变量解析配置
//
//   - TIMINGMESH_LOG_LEVEL: 子系统=级别,子系统=级别,默认级别
//     示例: negotiation=debug,relay=warn,info
//   - TIMINGMESH_LOG_FORMAT: text 或 json
//   - TIMINGMESH_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	return ParseConfig(os.LookupEnv)
}

// ParseConfig 用给定的查找函数解析配置
func ParseConfig(lookup func(string) (string, bool)) *Config {
	cfg := NewConfig()

	if levelStr, ok := lookup(EnvLevel); ok && levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if formatStr, ok := lookup(EnvFormat); ok && strings.EqualFold(formatStr, "json") {
		cfg.Format = FormatJSON
	}

	if addSourceStr, ok := lookup(EnvAddSource); ok && addSourceStr != "" {
		cfg.AddSource = addSourceStr != "false" && addSourceStr != "0"
	}

	return cfg
}

// LevelForSubsystem 获取子系统的日志级别
//
// 组件名形如 "core/negotiation"，先按完整名称匹配，再按最后一段匹配。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if level, ok := c.subsystemLevels[subsystem]; ok {
		return level
	}
	if i := strings.LastIndexByte(subsystem, '/'); i >= 0 {
		if level, ok := c.subsystemLevels[subsystem[i+1:]]; ok {
			return level
		}
	}
	return c.defaultLevel
}

// SetLevel 设置子系统级别，subsystem 为空时设置默认级别
func (c *Config) SetLevel(subsystem string, level slog.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if subsystem == "" {
		c.defaultLevel = level
		return
	}
	c.subsystemLevels[subsystem] = level
}

// parseLevelConfig 解析日志级别配置字符串
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		subsystem, levelName, found := strings.Cut(part, "=")
		if !found {
			if level, ok := parseLevel(part); ok {
				cfg.defaultLevel = level
			}
			continue
		}
		if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
			cfg.subsystemLevels[strings.TrimSpace(subsystem)] = level
		}
	}
}

// parseLevel 解析日志级别名称
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
