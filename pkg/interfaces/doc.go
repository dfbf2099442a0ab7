// Package interfaces 定义 timingmesh 的公共接口
//
// 接口按外部协作者划分，一个接口文件对应一类实现：
//
//   - relay.go      - 中继连接与拨号（internal/core/relay/client）
//   - transport.go  - 点对点协商原语（internal/core/transport/webrtc、memory）
//   - eventbus.go   - 事件总线（internal/core/eventbus）
//
// 核心组件只依赖这些接口，测试以进程内实现替换生产实现。
package interfaces
