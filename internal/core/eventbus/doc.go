// Package eventbus 实现进程内事件总线
//
// Provider 的通知（EvtChange、EvtAdjust、EvtReadyStateChange、EvtError）
// 经由总线分发。按事件类型划分节点，每个订阅者持有带缓冲的通道，
// 缓冲区满时丢弃事件并周期性告警。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.EvtChange), eventbus.BufSize(64))
//	defer sub.Close()
//
//	em, _ := bus.Emitter(new(types.EvtChange))
//	defer em.Close()
//	em.Emit(types.EvtChange{Vector: v})
//
// # 有状态模式
//
// 以 Stateful() 创建的发射器会记住最后一个事件，新订阅者立即收到它。
// EvtReadyStateChange 使用该模式，使晚订阅者也能看到当前状态。
//
// # 关闭
//
// Close 关闭所有订阅通道，订阅者的 range 循环随之结束；之后的
// Subscribe、Emitter、Emit 返回 ErrClosed。
package eventbus
