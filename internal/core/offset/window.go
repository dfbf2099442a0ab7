package offset

import "time"

// DefaultWindowSize 默认 (offset, rtt) 窗口大小
const DefaultWindowSize = 60

// Sample 一次 ping/pong 的测量结果
type Sample struct {
	Offset float64
	RTT    time.Duration
}

// Window 最近 N 个样本的滑动窗口
type Window struct {
	size    int
	samples []Sample
}

// NewWindow 创建窗口
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		size:    size,
		samples: make([]Sample, 0, size),
	}
}

// Add 添加样本，超出窗口的旧样本被丢弃
func (w *Window) Add(s Sample) {
	w.samples = append(w.samples, s)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

// Len 当前样本数
func (w *Window) Len() int {
	return len(w.samples)
}

// MostLikely 返回窗口内 RTT 最小的样本
func (w *Window) MostLikely() (Sample, bool) {
	return SelectMostLikelyOffset(w.samples, w.size)
}

// SelectMostLikelyOffset 在最近 windowSize 个样本中选出 RTT 最小者
//
// RTT 越小，对称延迟假设越可信。RTT 相同时取较新的样本。
func SelectMostLikelyOffset(samples []Sample, windowSize int) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	if windowSize > 0 && len(samples) > windowSize {
		samples = samples[len(samples)-windowSize:]
	}

	best := samples[0]
	for _, s := range samples[1:] {
		if s.RTT <= best.RTT {
			best = s
		}
	}
	return best, true
}
