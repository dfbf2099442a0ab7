// Package recovery 管理中继连接与重连退避
//
// # 概述
//
// Supervisor 持有唯一的中继连接：建立连接、读取帧并交给上层、
// 在传输故障时按退避重试。
//
// # 退避
//
// 第 n 次连续失败后等待 base × n²（n = 1, 2, 3），第 4 次失败为致命错误，
// 原样返回给上层，不再重试。收到任何消息都会重置失败计数。
//
// # 就绪状态
//
//	connecting → open → closed
//
// 首次连接成功后进入 open，之后的重连不离开 open；closed 为终态。
//
// # 使用示例
//
//	sup := recovery.NewSupervisor(recovery.DefaultConfig(), url, dialer, clk, recovery.Handlers{
//	    OnMessage: mux.HandleMessage,
//	    OnFatal:   func(err error) { ... },
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package recovery
