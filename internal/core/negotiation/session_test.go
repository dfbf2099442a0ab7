package negotiation

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-timingmesh/internal/core/relay/wire"
	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// mockPeerConnection 记录调用顺序
type mockPeerConnection struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockPeerConnection) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockPeerConnection) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockPeerConnection) CreateDataChannel(label string) (interfaces.DataChannel, error) {
	m.record("create-channel")
	return &mockDataChannel{label: label}, nil
}

func (m *mockPeerConnection) OnDataChannel(func(interfaces.DataChannel)) {}

func (m *mockPeerConnection) OnICECandidate(func(*types.ICECandidate)) {}

func (m *mockPeerConnection) CreateOffer() (types.SessionDescription, error) {
	m.record("create-offer")
	return types.SessionDescription{Type: types.SDPTypeOffer, SDP: "o"}, nil
}

func (m *mockPeerConnection) CreateAnswer() (types.SessionDescription, error) {
	m.record("create-answer")
	return types.SessionDescription{Type: types.SDPTypeAnswer, SDP: "a"}, nil
}

func (m *mockPeerConnection) SetLocalDescription(desc types.SessionDescription) error {
	m.record("local:" + string(desc.Type))
	return nil
}

func (m *mockPeerConnection) SetRemoteDescription(desc types.SessionDescription) error {
	m.record("remote:" + string(desc.Type))
	return nil
}

func (m *mockPeerConnection) AddICECandidate(c types.ICECandidate) error {
	m.record("candidate:" + c.Candidate)
	return nil
}

func (m *mockPeerConnection) EndOfCandidates() error {
	m.record("end")
	return nil
}

func (m *mockPeerConnection) Close() error {
	m.record("close")
	return nil
}

type mockDataChannel struct {
	label string
}

func (d *mockDataChannel) Label() string { return d.label }
func (d *mockDataChannel) OnOpen(func()) {}
func (d *mockDataChannel) Send([]byte) error { return nil }
func (d *mockDataChannel) Recv() ([]byte, error) { select {} }
func (d *mockDataChannel) Close() error { return nil }

type mockFactory struct {
	pc *mockPeerConnection
}

func (f *mockFactory) NewPeerConnection() (interfaces.PeerConnection, error) {
	return f.pc, nil
}

func candidate(name string) wire.PeerFrame {
	return wire.PeerFrame{Client: wire.Client{ID: "aaa"}, Message: wire.Candidate{ICECandidate: types.ICECandidate{Candidate: name}}}
}

func TestSession_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	pc := &mockPeerConnection{}
	mux, _, _ := newIsolatedMux(t, "bbb", &mockFactory{pc: pc}, clock.NewMock())

	mux.HandleMessage(wire.Request{Client: wire.Client{ID: "aaa"}})
	mux.HandleMessage(candidate("c1"))
	mux.HandleMessage(candidate("c2"))
	mux.HandleMessage(wire.PeerFrame{Client: wire.Client{ID: "aaa"}, Message: wire.Summary{NumberOfGatheredCandidates: 3}})
	mux.HandleMessage(wire.PeerFrame{
		Client:  wire.Client{ID: "aaa"},
		Message: wire.Description{SessionDescription: types.SessionDescription{Type: types.SDPTypeOffer, SDP: "o"}},
	})

	require.Eventually(t, func() bool { return len(pc.Calls()) >= 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"remote:offer",
		"candidate:c1",
		"candidate:c2",
		"create-answer",
		"local:answer",
	}, pc.Calls())

	s, ok := mux.Session("aaa")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, s.State())

	// 第三个候选到达后发出结束信号
	mux.HandleMessage(candidate("c3"))
	require.Eventually(t, func() bool {
		calls := pc.Calls()
		return len(calls) == 7 && calls[5] == "candidate:c3" && calls[6] == "end"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_ActiveSendsOfferFirst(t *testing.T) {
	pc := &mockPeerConnection{}
	mux, p, _ := newIsolatedMux(t, "aaa", &mockFactory{pc: pc}, clock.NewMock())

	mux.HandleMessage(wire.Request{Client: wire.Client{ID: "bbb"}, Token: "t-bbb"})

	require.Eventually(t, func() bool { return len(p.sentMessages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"create-channel", "create-offer", "local:offer"}, pc.Calls())

	p.mu.Lock()
	frame := p.sent[0]
	p.mu.Unlock()
	assert.Equal(t, "bbb", frame.Client.ID)
	assert.Equal(t, "t-bbb", frame.Token)
}

func TestSession_RemoteErrorIsNotEchoed(t *testing.T) {
	pc := &mockPeerConnection{}
	mux, p, failures := newIsolatedMux(t, "bbb", &mockFactory{pc: pc}, clock.NewMock())

	mux.HandleMessage(wire.Request{Client: wire.Client{ID: "aaa"}})
	mux.HandleMessage(wire.PeerFrame{Client: wire.Client{ID: "aaa"}, Message: wire.Error{Reason: "boom"}})

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, ErrRemoteFailure)
	case <-time.After(time.Second):
		t.Fatal("remote failure not reported")
	}
	assert.Empty(t, p.sentMessages())
	assert.Contains(t, pc.Calls(), "close")
}
