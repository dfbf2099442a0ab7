// Package wire 定义中继线路消息
//
// 中继连接上传输的是 JSON 文本帧。顶层消息是一个封闭的和类型：
//
//	Init        {"type":"init","client":{"id"},"origin","events":[Request...]}
//	Request     {"type":"request","client":{"id"},"token"}
//	Termination {"type":"termination","client":{"id"}}
//	PeerFrame   {"client":{"id"},"token","message":{"type","message"}}
//
// PeerFrame 内部的 PeerMessage 同样是封闭的和类型：Candidate、
// Description、Summary、Error。未识别的标签返回 ErrUnknownMessage。
package wire

import (
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// Client 客户端标识
type Client struct {
	ID string `json:"id"`
}

// Message 中继顶层消息
type Message interface {
	isMessage()
}

// Init 中继在每条连接建立后发送一次
type Init struct {
	Client Client    `json:"client"`
	Origin float64   `json:"origin"`
	Events []Request `json:"events"`
}

// Request 通知有对端可建立会话
type Request struct {
	Client Client `json:"client"`
	Token  string `json:"token,omitempty"`
}

// Termination 对端离开或要求结束会话
type Termination struct {
	Client Client `json:"client"`
}

// PeerFrame 点对点转发帧
type PeerFrame struct {
	Client  Client      `json:"client"`
	Token   string      `json:"token,omitempty"`
	Message PeerMessage `json:"message"`
}

func (Init) isMessage()        {}
func (Request) isMessage()     {}
func (Termination) isMessage() {}
func (PeerFrame) isMessage()   {}

// ============================================================================
//                              PeerMessage
// ============================================================================

// PeerMessage 协商消息
type PeerMessage interface {
	peerType() string
}

// Candidate 路径候选
type Candidate struct {
	types.ICECandidate
}

// Description 会话描述
type Description struct {
	types.SessionDescription
}

// Summary 候选收集完成，携带收集到的候选数
type Summary struct {
	NumberOfGatheredCandidates int `json:"numberOfGatheredCandidates"`
}

// Error 协商失败通知
type Error struct {
	Reason string `json:"reason"`
}

func (Candidate) peerType() string   { return TypeCandidate }
func (Description) peerType() string { return TypeDescription }
func (Summary) peerType() string     { return TypeSummary }
func (Error) peerType() string       { return TypeError }

// 消息类型标签
const (
	TypeInit        = "init"
	TypeRequest     = "request"
	TypeTermination = "termination"

	TypeCandidate   = "candidate"
	TypeDescription = "description"
	TypeSummary     = "summary"
	TypeError       = "error"
)
