// Package webrtc 基于 pion/webrtc 实现点对点协商原语
//
// 数据通道以 detached 模式运行：通道打开后通过 pion/datachannel 的
// ReadWriteCloser 直接读写消息，不经过 pion 的回调分发。pion 内部日志
// 通过 pion/logging 的 LoggerFactory 桥接到组件日志。
package webrtc
