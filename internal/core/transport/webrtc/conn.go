package webrtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// peerConn 包装 *webrtc.PeerConnection
type peerConn struct {
	pc *webrtc.PeerConnection
}

var _ interfaces.PeerConnection = (*peerConn)(nil)

func (c *peerConn) CreateDataChannel(label string) (interfaces.DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return newDataChannel(dc), nil
}

func (c *peerConn) OnDataChannel(f func(interfaces.DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(newDataChannel(dc))
	})
}

func (c *peerConn) OnICECandidate(f func(*types.ICECandidate)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			f(nil)
			return
		}
		converted := toCandidate(candidate.ToJSON())
		f(&converted)
	})
}

func (c *peerConn) CreateOffer() (types.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return types.SessionDescription{}, err
	}
	return toDescription(offer), nil
}

func (c *peerConn) CreateAnswer() (types.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return types.SessionDescription{}, err
	}
	return toDescription(answer), nil
}

func (c *peerConn) SetLocalDescription(desc types.SessionDescription) error {
	d, err := fromDescription(desc)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(d)
}

func (c *peerConn) SetRemoteDescription(desc types.SessionDescription) error {
	d, err := fromDescription(desc)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(d)
}

func (c *peerConn) AddICECandidate(candidate types.ICECandidate) error {
	return c.pc.AddICECandidate(fromCandidate(candidate))
}

// EndOfCandidates 以空候选通知远端候选结束
func (c *peerConn) EndOfCandidates() error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: ""})
}

func (c *peerConn) Close() error {
	return c.pc.Close()
}
