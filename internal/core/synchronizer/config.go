package synchronizer

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-timingmesh/internal/core/offset"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// Config 同步器配置
type Config struct {
	// PingInterval 每条链路的 ping 间隔
	PingInterval time.Duration

	// SampleSize 偏移估计的平均样本数
	SampleSize int

	// RTTWindow 链路排序使用的最小 RTT 窗口
	RTTWindow int

	// Range update 时位置被限制在此范围内，零值表示无界
	Range types.Range

	// HopID 本节点在 hops 中的标识，0 表示随机生成
	HopID int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PingInterval: offset.DefaultPingInterval,
		SampleSize:   offset.DefaultSampleSize,
		RTTWindow:    offset.DefaultWindowSize,
		Range:        types.UnboundedRange(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.SampleSize <= 0 {
		c.SampleSize = def.SampleSize
	}
	if c.RTTWindow <= 0 {
		c.RTTWindow = def.RTTWindow
	}
	if c.Range == (types.Range{}) {
		c.Range = def.Range
	}
	if c.HopID == 0 {
		c.HopID = NewHopID()
	}
	return c
}

// NewHopID 从随机 UUID 派生 hop 标识
func NewHopID() int {
	id := uuid.New()
	return int(binary.BigEndian.Uint32(id[:4]))
}
