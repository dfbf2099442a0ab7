// Package timingmesh 提供无中心的时间线同步网格
//
// 多个对端通过轻量中继（Relay）互相发现，随后建立直连数据通道，
// 测量时钟偏移、交换并合并时间线更新。网格中没有预先指定的权威节点，
// 各节点依据确定性的权威排序规则收敛到同一个时间源。
//
// # 快速开始
//
//	p, err := timingmesh.New("my-room")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Destroy()
//
//	p.On(timingmesh.EventChange, func(evt any) {
//	    change := evt.(types.EvtChange)
//	    fmt.Println(change.Vector)
//	})
//
//	err = p.Update(ctx, types.PartialVector{Velocity: types.Float(1)})
//
// # 生命周期
//
// 就绪状态只能按 connecting → open → closed 推进：
//   - connecting: 正在连接中继
//   - open: 中继已连接（重连期间保持 open）
//   - closed: 终态，由 Destroy 或中继重试耗尽触发
//
// Destroy 不是幂等的，第二次调用返回 ErrAlreadyDestroyed。
//
// # 通知
//
// 通知经事件总线投递，监听器在独立的分发 goroutine 上调用：
//   - change: types.EvtChange，时间线变化
//   - adjust: types.EvtAdjust，skew 变化
//   - readystatechange: types.EvtReadyStateChange
//   - error: types.EvtError，中继致命错误
package timingmesh
