package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownMessage 未识别的消息标签
	ErrUnknownMessage = errors.New("unknown relay message")

	// ErrMalformedMessage 消息结构无效
	ErrMalformedMessage = errors.New("malformed relay message")
)

type envelope struct {
	Type    string          `json:"type,omitempty"`
	Client  *Client         `json:"client,omitempty"`
	Token   string          `json:"token,omitempty"`
	Origin  float64         `json:"origin,omitempty"`
	Events  []Request       `json:"events,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

type peerEnvelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// Encode 编码顶层消息
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Init:
		events := m.Events
		if events == nil {
			events = []Request{}
		}
		return json.Marshal(struct {
			Type   string    `json:"type"`
			Client Client    `json:"client"`
			Origin float64   `json:"origin"`
			Events []Request `json:"events"`
		}{TypeInit, m.Client, m.Origin, events})
	case Request:
		return m.MarshalJSON()
	case Termination:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Client Client `json:"client"`
		}{TypeTermination, m.Client})
	case PeerFrame:
		if m.Message == nil {
			return nil, fmt.Errorf("%w: peer frame without message", ErrMalformedMessage)
		}
		inner, err := json.Marshal(m.Message)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Client  Client       `json:"client"`
			Token   string       `json:"token,omitempty"`
			Message peerEnvelope `json:"message"`
		}{m.Client, m.Token, peerEnvelope{Type: m.Message.peerType(), Message: inner}})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// MarshalJSON 编码为带 type 标签的 RequestEvent
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Client Client `json:"client"`
		Token  string `json:"token,omitempty"`
	}{TypeRequest, r.Client, r.Token})
}

// Decode 解码顶层消息
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeInit:
		if env.Client == nil {
			return nil, fmt.Errorf("%w: init without client", ErrMalformedMessage)
		}
		return Init{Client: *env.Client, Origin: env.Origin, Events: env.Events}, nil
	case TypeRequest:
		if env.Client == nil {
			return nil, fmt.Errorf("%w: request without client", ErrMalformedMessage)
		}
		return Request{Client: *env.Client, Token: env.Token}, nil
	case TypeTermination:
		if env.Client == nil {
			return nil, fmt.Errorf("%w: termination without client", ErrMalformedMessage)
		}
		return Termination{Client: *env.Client}, nil
	case "":
		if env.Client == nil || len(env.Message) == 0 {
			return nil, fmt.Errorf("%w: untyped frame", ErrUnknownMessage)
		}
		inner, err := decodePeerMessage(env.Message)
		if err != nil {
			return nil, err
		}
		return PeerFrame{Client: *env.Client, Token: env.Token, Message: inner}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func decodePeerMessage(raw json.RawMessage) (PeerMessage, error) {
	var env peerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var (
		msg PeerMessage
		err error
	)
	switch env.Type {
	case TypeCandidate:
		var c Candidate
		err = json.Unmarshal(env.Message, &c)
		msg = c
	case TypeDescription:
		var d Description
		err = json.Unmarshal(env.Message, &d)
		msg = d
	case TypeSummary:
		var s Summary
		err = json.Unmarshal(env.Message, &s)
		msg = s
	case TypeError:
		var e Error
		if len(env.Message) > 0 {
			err = json.Unmarshal(env.Message, &e)
		}
		msg = e
	default:
		return nil, fmt.Errorf("%w: peer message %q", ErrUnknownMessage, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Type, err)
	}
	return msg, nil
}
