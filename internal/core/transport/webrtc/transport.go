package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("core/transport/webrtc")

// Config 工厂配置
type Config struct {
	// ICEServers STUN/TURN 服务器 URL
	ICEServers []string
}

// Factory 基于 pion 的 PeerConnectionFactory
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ interfaces.PeerConnectionFactory = (*Factory)(nil)

// NewFactory 创建工厂
func NewFactory(cfg Config) *Factory {
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}
	se.DetachDataChannels()

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		config: webrtc.Configuration{ICEServers: servers},
	}
}

// NewPeerConnection 实现 PeerConnectionFactory
func (f *Factory) NewPeerConnection() (interfaces.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("webrtc: new peer connection: %w", err)
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("连接状态变化", "state", state.String())
	})
	return &peerConn{pc: pc}, nil
}

// ============================================================================
//                              类型转换
// ============================================================================

func toDescription(desc webrtc.SessionDescription) types.SessionDescription {
	return types.SessionDescription{Type: types.SDPType(desc.Type.String()), SDP: desc.SDP}
}

func fromDescription(desc types.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(string(desc.Type))
	if t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %q", ErrUnknownSDPType, desc.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}

func toCandidate(init webrtc.ICECandidateInit) types.ICECandidate {
	return types.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func fromCandidate(c types.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
