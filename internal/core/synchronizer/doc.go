// Package synchronizer 实现时间线状态同步器
//
// Synchronizer 拥有本地时间线向量与 timeOrigin，消费协商完成的链路，
// 在每条链路上运行偏移估计，并按权威顺序合并对端发来的向量。
//
// # 并发模型
//
// 所有状态只在事件循环 goroutine 中修改。每条链路有一个读 goroutine
// 和一个 ping 计时 goroutine，它们把事件投递到循环的 inbox。公共读取
// 接口（Vector、Skew）返回原子发布的快照。
//
// # 合并规则
//
// 收到 (origin, vector) 后先用链路偏移把远端时间戳换算到本地时钟：
//
//   - 本地 origin 更小，或 origin 相同且本地时间戳严格更大：本地胜出，
//     把外推到当前时刻的本地向量发回该链路
//   - 否则远端胜出：timeOrigin 取较小值，采纳远端向量（hops 追加本节点），
//     发出 change 事件
package synchronizer
