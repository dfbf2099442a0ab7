package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-timingmesh/pkg/types"
)

func TestDescriptionConversion(t *testing.T) {
	desc := types.SessionDescription{Type: types.SDPTypeAnswer, SDP: "v=0"}
	converted, err := fromDescription(desc)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, converted.Type)
	assert.Equal(t, desc, toDescription(converted))

	_, err = fromDescription(types.SessionDescription{Type: "pranswer-ish"})
	assert.ErrorIs(t, err, ErrUnknownSDPType)
}

func TestCandidateConversion(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	c := types.ICECandidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}
	assert.Equal(t, c, toCandidate(fromCandidate(c)))
}

func TestFactory_OfferHasDataChannel(t *testing.T) {
	f := NewFactory(Config{})

	pc, err := f.NewPeerConnection()
	require.NoError(t, err)
	defer pc.Close()

	dc, err := pc.CreateDataChannel("timing")
	require.NoError(t, err)
	assert.Equal(t, "timing", dc.Label())

	offer, err := pc.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, types.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "webrtc-datachannel")

	err = dc.Send([]byte("early"))
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestLoggerFactory(t *testing.T) {
	l := loggerFactory{}.NewLogger("ice")
	l.Tracef("trace %d", 1)
	l.Infof("info %s", "x")
	l.Warn("warn")
}
