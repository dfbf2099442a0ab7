// Package negotiation 实现对端协商
//
// Multiplexer 把中继上交织的事件流拆分为按 clientID 的 Session，
// 依据 clientID 字典序分配主动/被动角色，并在 request 之前到达的
// 事件按到达顺序缓存、在会话创建后回放。
//
// 每个 Session 运行一个独立的 goroutine，所有远端消息与本地异步结果
// （候选收集、通道打开、握手超时）都投递到它的 inbox，因此单个会话
// 内的处理严格有序，不同会话互不阻塞。会话关闭后到达的异步结果被丢弃。
//
// 会话失败只影响自身：连接被关闭，Multiplexer 中的槽位被释放，
// 并向对端发送 error 消息。
package negotiation
