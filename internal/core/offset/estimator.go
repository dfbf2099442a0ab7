// Package offset 实现每条链路的时钟偏移估计
//
// 每秒发送一次无负载 ping，收到携带对端时钟读数的 pong 后按经典双向公式
// 计算偏移：
//
//	offset = remotePongTime - (localSendTime + localReceiveTime) / 2
//
// 保留最近 SampleSize 个样本，报告其算术平均（秒）。
package offset

import "time"

const (
	// DefaultSampleSize 默认样本数
	DefaultSampleSize = 5

	// DefaultPingInterval 默认 ping 间隔
	DefaultPingInterval = time.Second

	// maxInFlight 未应答 ping 的上限，超出时丢弃最早的记录
	maxInFlight = 16
)

// Estimator 单条链路的偏移估计器
//
// 非并发安全，由同步器的事件循环独占使用。
type Estimator struct {
	sampleSize int
	samples    []float64

	// inFlight 未应答 ping 的发送时间，按发送顺序排列。
	// 链路有序可靠，pong 总是应答最早的未应答 ping。
	inFlight []float64

	window *Window
}

// NewEstimator 创建估计器
//
// sampleSize 为平均样本数，windowSize 为 (offset, rtt) 窗口大小。
func NewEstimator(sampleSize, windowSize int) *Estimator {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Estimator{
		sampleSize: sampleSize,
		samples:    make([]float64, 0, sampleSize),
		window:     NewWindow(windowSize),
	}
}

// RecordPing 记录 ping 的本地发送时间（秒）
func (e *Estimator) RecordPing(localSendTime float64) {
	if len(e.inFlight) == maxInFlight {
		e.inFlight = e.inFlight[1:]
	}
	e.inFlight = append(e.inFlight, localSendTime)
}

// RecordPong 处理 pong 并返回新的偏移估计
//
// pong 与最早的未应答 ping 配对。没有对应 ping，或接收时间早于发送时间时
// 返回 false，样本被丢弃。
func (e *Estimator) RecordPong(remotePongTime, localReceiveTime float64) (float64, bool) {
	if len(e.inFlight) == 0 {
		return 0, false
	}
	send := e.inFlight[0]
	e.inFlight = e.inFlight[1:]
	if localReceiveTime < send {
		return 0, false
	}

	sample := remotePongTime - (send+localReceiveTime)/2
	rtt := secondsToDuration(localReceiveTime - send)

	e.samples = append(e.samples, sample)
	if len(e.samples) > e.sampleSize {
		e.samples = e.samples[len(e.samples)-e.sampleSize:]
	}
	e.window.Add(Sample{Offset: sample, RTT: rtt})

	return e.Offset(), true
}

// Offset 当前估计（最近样本的平均值），无样本时为 0
func (e *Estimator) Offset() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range e.samples {
		sum += s
	}
	return sum / float64(len(e.samples))
}

// HasEstimate 是否已有至少一个样本
func (e *Estimator) HasEstimate() bool {
	return len(e.samples) > 0
}

// MinRTT 窗口内的最小 RTT
func (e *Estimator) MinRTT() time.Duration {
	s, ok := e.window.MostLikely()
	if !ok {
		return 0
	}
	return s.RTT
}

// Window 返回 (offset, rtt) 窗口
func (e *Estimator) Window() *Window {
	return e.window
}

func secondsToDuration(s float64) time.Duration {
	if s < 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
