// Package metrics 定义 timingmesh 的 Prometheus 指标
//
// 指标注册在调用方提供的 prometheus.Registerer 上（默认为私有
// Registry），同一进程内的多个 Provider 互不冲突。
//
//	timingmesh_links_open                       当前打开的链路数
//	timingmesh_skew_seconds                     当前 skew
//	timingmesh_relay_skew_seconds               本地时钟与中继 init.origin 之差
//	timingmesh_updates_broadcast_total          广播的 update 数
//	timingmesh_updates_received_total{result}   收到的 update，adopted|rejected
//	timingmesh_negotiations_total{result}       协商结果，opened|failed
//	timingmesh_relay_reconnects_total           中继断线次数
package metrics
