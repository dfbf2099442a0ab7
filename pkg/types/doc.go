// Package types 定义 timingmesh 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - vector.go: 时间线状态向量、部分更新、位置范围
//   - readystate.go: 就绪状态与协商角色
//   - negotiation.go: 会话描述与路径候选
//   - events.go: 事件总线上的通知类型
package types
