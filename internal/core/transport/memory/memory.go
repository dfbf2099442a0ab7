// Package memory 提供进程内的协商原语实现
//
// 用于确定性测试与本机演示。offer/answer 的 SDP 为 "memory:<id>"，
// 设置本地描述后异步产出若干合成候选。双方均设置了本地、远端描述
// 并收到候选结束信号后，连接建立：主动方的数据通道与被动方新建的
// 通道配对，双方的 OnOpen 回调被触发。
package memory

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

const sdpPrefix = "memory:"

var (
	// ErrUnknownPeer 远端描述指向不存在的连接
	ErrUnknownPeer = errors.New("memory: unknown peer")

	// ErrNoRemoteDescription 尚未设置远端描述
	ErrNoRemoteDescription = errors.New("memory: remote description not set")

	// ErrClosed 连接或通道已关闭
	ErrClosed = errors.New("memory: closed")
)

// Network 进程内网络，PeerConnection 通过它互相查找
type Network struct {
	mu         sync.Mutex
	peers      map[string]*PeerConnection
	candidates int
}

// 确保实现接口
var _ interfaces.PeerConnectionFactory = (*Network)(nil)

// NewNetwork 创建网络，每个连接产出 2 个合成候选
func NewNetwork() *Network {
	return &Network{
		peers:      make(map[string]*PeerConnection),
		candidates: 2,
	}
}

// SetCandidateCount 设置每个连接产出的候选数
func (n *Network) SetCandidateCount(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.candidates = count
}

// Len 当前存活的连接数
func (n *Network) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

// NewPeerConnection 实现 PeerConnectionFactory
func (n *Network) NewPeerConnection() (interfaces.PeerConnection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	pc := &PeerConnection{
		id:         uuid.NewString(),
		network:    n,
		candidates: n.candidates,
	}
	n.peers[pc.id] = pc
	return pc, nil
}

func (n *Network) lookup(id string) *PeerConnection {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[id]
}

func (n *Network) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// ============================================================================
//                              PeerConnection
// ============================================================================

// PeerConnection 进程内连接
type PeerConnection struct {
	id         string
	network    *Network
	candidates int

	mu          sync.Mutex
	hasLocal    bool
	remote      *PeerConnection
	ended       bool
	applied     int
	connected   bool
	closed      bool
	channel     *DataChannel
	onChannel   func(interfaces.DataChannel)
	onCandidate func(*types.ICECandidate)
}

var _ interfaces.PeerConnection = (*PeerConnection)(nil)

// ID 连接标识
func (pc *PeerConnection) ID() string {
	return pc.id
}

// AppliedCandidates 已应用的远端候选数
func (pc *PeerConnection) AppliedCandidates() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.applied
}

// CreateDataChannel 实现 PeerConnection
func (pc *PeerConnection) CreateDataChannel(label string) (interfaces.DataChannel, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil, ErrClosed
	}
	pc.channel = newDataChannel(label)
	return pc.channel, nil
}

// OnDataChannel 实现 PeerConnection
func (pc *PeerConnection) OnDataChannel(f func(interfaces.DataChannel)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onChannel = f
}

// OnICECandidate 实现 PeerConnection
func (pc *PeerConnection) OnICECandidate(f func(*types.ICECandidate)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onCandidate = f
}

// CreateOffer 实现 PeerConnection
func (pc *PeerConnection) CreateOffer() (types.SessionDescription, error) {
	if pc.isClosed() {
		return types.SessionDescription{}, ErrClosed
	}
	return types.SessionDescription{Type: types.SDPTypeOffer, SDP: sdpPrefix + pc.id}, nil
}

// CreateAnswer 实现 PeerConnection
func (pc *PeerConnection) CreateAnswer() (types.SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return types.SessionDescription{}, ErrClosed
	}
	if pc.remote == nil {
		return types.SessionDescription{}, ErrNoRemoteDescription
	}
	return types.SessionDescription{Type: types.SDPTypeAnswer, SDP: sdpPrefix + pc.id}, nil
}

// SetLocalDescription 实现 PeerConnection，随后异步产出候选
func (pc *PeerConnection) SetLocalDescription(desc types.SessionDescription) error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return ErrClosed
	}
	if desc.SDP != sdpPrefix+pc.id {
		pc.mu.Unlock()
		return fmt.Errorf("memory: foreign local description %q", desc.SDP)
	}
	pc.hasLocal = true
	onCandidate := pc.onCandidate
	count := pc.candidates
	pc.mu.Unlock()

	if onCandidate != nil {
		go func() {
			for i := 0; i < count; i++ {
				onCandidate(&types.ICECandidate{Candidate: fmt.Sprintf("candidate:memory %s %d", pc.id, i)})
			}
			onCandidate(nil)
		}()
	}

	pc.tryConnect()
	return nil
}

// SetRemoteDescription 实现 PeerConnection
func (pc *PeerConnection) SetRemoteDescription(desc types.SessionDescription) error {
	if !strings.HasPrefix(desc.SDP, sdpPrefix) {
		return fmt.Errorf("memory: unsupported description %q", desc.SDP)
	}
	remote := pc.network.lookup(strings.TrimPrefix(desc.SDP, sdpPrefix))
	if remote == nil {
		return ErrUnknownPeer
	}

	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return ErrClosed
	}
	pc.remote = remote
	pc.mu.Unlock()

	pc.tryConnect()
	return nil
}

// AddICECandidate 实现 PeerConnection
func (pc *PeerConnection) AddICECandidate(candidate types.ICECandidate) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return ErrClosed
	}
	if pc.remote == nil {
		return ErrNoRemoteDescription
	}
	if !strings.HasPrefix(candidate.Candidate, "candidate:memory ") {
		return fmt.Errorf("memory: foreign candidate %q", candidate.Candidate)
	}
	pc.applied++
	return nil
}

// EndOfCandidates 实现 PeerConnection
func (pc *PeerConnection) EndOfCandidates() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return ErrClosed
	}
	if pc.remote == nil {
		pc.mu.Unlock()
		return ErrNoRemoteDescription
	}
	pc.ended = true
	pc.mu.Unlock()

	pc.tryConnect()
	return nil
}

// Close 实现 PeerConnection
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	ch := pc.channel
	pc.mu.Unlock()

	pc.network.remove(pc.id)
	if ch != nil {
		_ = ch.Close()
	}
	return nil
}

func (pc *PeerConnection) isClosed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

func (pc *PeerConnection) ready() bool {
	return !pc.closed && pc.hasLocal && pc.remote != nil && pc.ended
}

// tryConnect 双方就绪后配对数据通道
func (pc *PeerConnection) tryConnect() {
	pc.network.mu.Lock()
	defer pc.network.mu.Unlock()

	pc.mu.Lock()
	remote := pc.remote
	pc.mu.Unlock()
	if remote == nil {
		return
	}

	// 按固定顺序加锁
	first, second := pc, remote
	if first.id > second.id {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()

	ok := first.ready() && second.ready() && !first.connected && !second.connected &&
		first.remote == second && second.remote == first

	var active, passive *PeerConnection
	if ok {
		switch {
		case first.channel != nil && second.channel == nil:
			active, passive = first, second
		case second.channel != nil && first.channel == nil:
			active, passive = second, first
		default:
			ok = false
		}
	}

	var local, peer *DataChannel
	var onChannel func(interfaces.DataChannel)
	if ok {
		first.connected = true
		second.connected = true
		local = active.channel
		peer = newDataChannel(local.label)
		local.peer = peer
		peer.peer = local
		passive.channel = peer
		onChannel = passive.onChannel
	}

	second.mu.Unlock()
	first.mu.Unlock()

	if !ok {
		return
	}

	go func() {
		if onChannel != nil {
			onChannel(peer)
		}
		peer.markOpen()
		local.markOpen()
	}()
}

// ============================================================================
//                              DataChannel
// ============================================================================

// DataChannel 进程内数据通道
type DataChannel struct {
	label string
	inbox chan []byte

	mu      sync.Mutex
	peer    *DataChannel
	open    bool
	onOpen  []func()
	closed  chan struct{}
	closeMu sync.Once
}

var _ interfaces.DataChannel = (*DataChannel)(nil)

func newDataChannel(label string) *DataChannel {
	return &DataChannel{
		label:  label,
		inbox:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

// Label 实现 DataChannel
func (dc *DataChannel) Label() string {
	return dc.label
}

// OnOpen 实现 DataChannel
func (dc *DataChannel) OnOpen(f func()) {
	dc.mu.Lock()
	if dc.open {
		dc.mu.Unlock()
		go f()
		return
	}
	dc.onOpen = append(dc.onOpen, f)
	dc.mu.Unlock()
}

func (dc *DataChannel) markOpen() {
	dc.mu.Lock()
	dc.open = true
	callbacks := dc.onOpen
	dc.onOpen = nil
	dc.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// Send 实现 DataChannel
func (dc *DataChannel) Send(data []byte) error {
	dc.mu.Lock()
	peer := dc.peer
	open := dc.open
	dc.mu.Unlock()

	if !open || peer == nil {
		return ErrClosed
	}

	msg := append([]byte(nil), data...)
	select {
	case <-dc.closed:
		return ErrClosed
	case <-peer.closed:
		return ErrClosed
	case peer.inbox <- msg:
		return nil
	}
}

// Recv 实现 DataChannel
func (dc *DataChannel) Recv() ([]byte, error) {
	select {
	case msg := <-dc.inbox:
		return msg, nil
	case <-dc.closed:
		return nil, ErrClosed
	}
}

// Close 实现 DataChannel，同时关闭对端
func (dc *DataChannel) Close() error {
	first := false
	dc.closeMu.Do(func() {
		close(dc.closed)
		first = true
	})
	if !first {
		return nil
	}

	dc.mu.Lock()
	peer := dc.peer
	dc.mu.Unlock()
	if peer != nil {
		_ = peer.Close()
	}
	return nil
}
