// Package link 实现对端直连链路
//
// 链路上传输 JSON 文本消息，顶层是封闭的和类型：
//
//	Ping    {"type":"ping"}
//	Pong    {"type":"pong","message":<发送方 Unix 秒>}
//	Request {"type":"request"}
//	Update  {"type":"update","message":ExtendedVector,"origin":<发送方 timeOrigin>,"timestamp":<发送时刻>}
//
// 未识别的标签返回 ErrUnknownMessage，由读循环记录后跳过。
package link

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dep2p/go-timingmesh/pkg/types"
)

var (
	// ErrUnknownMessage 未识别的消息标签
	ErrUnknownMessage = errors.New("unknown link message")

	// ErrMalformedMessage 消息结构无效
	ErrMalformedMessage = errors.New("malformed link message")
)

// 消息类型标签
const (
	TypePing    = "ping"
	TypePong    = "pong"
	TypeRequest = "request"
	TypeUpdate  = "update"
)

// Message 链路消息
type Message interface {
	isLinkMessage()
}

// Ping 偏移测量请求
type Ping struct{}

// Pong 偏移测量响应，Time 为响应方时钟读数
type Pong struct {
	Time float64
}

// Request 请求对端立即发送当前向量
type Request struct{}

// Update 携带权威信息的状态向量
type Update struct {
	Vector    types.ExtendedVector
	Origin    float64
	Timestamp float64
}

func (Ping) isLinkMessage()    {}
func (Pong) isLinkMessage()    {}
func (Request) isLinkMessage() {}
func (Update) isLinkMessage()  {}

type envelope struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Origin    *float64        `json:"origin,omitempty"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

// Encode 编码链路消息
func Encode(msg Message) ([]byte, error) {
	env := envelope{}
	switch m := msg.(type) {
	case Ping:
		env.Type = TypePing
	case Request:
		env.Type = TypeRequest
	case Pong:
		env.Type = TypePong
		raw, err := json.Marshal(m.Time)
		if err != nil {
			return nil, err
		}
		env.Message = raw
	case Update:
		env.Type = TypeUpdate
		vector := m.Vector
		if vector.Hops == nil {
			vector.Hops = []int{}
		}
		raw, err := json.Marshal(vector)
		if err != nil {
			return nil, err
		}
		env.Message = raw
		env.Origin = &m.Origin
		env.Timestamp = &m.Timestamp
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return json.Marshal(env)
}

// Decode 解码链路消息
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypePing:
		return Ping{}, nil
	case TypeRequest:
		return Request{}, nil
	case TypePong:
		var t float64
		if err := json.Unmarshal(env.Message, &t); err != nil {
			return nil, fmt.Errorf("%w: pong: %v", ErrMalformedMessage, err)
		}
		return Pong{Time: t}, nil
	case TypeUpdate:
		if len(env.Message) == 0 || env.Origin == nil {
			return nil, fmt.Errorf("%w: update without vector or origin", ErrMalformedMessage)
		}
		var v types.ExtendedVector
		if err := json.Unmarshal(env.Message, &v); err != nil {
			return nil, fmt.Errorf("%w: update: %v", ErrMalformedMessage, err)
		}
		u := Update{Vector: v, Origin: *env.Origin}
		if env.Timestamp != nil {
			u.Timestamp = *env.Timestamp
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}
