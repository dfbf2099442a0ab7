package synchronizer

import (
	"github.com/dep2p/go-timingmesh/internal/core/hops"
	"github.com/dep2p/go-timingmesh/internal/core/kinematics"
	"github.com/dep2p/go-timingmesh/internal/core/link"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// merge 合并对端向量
func (s *Synchronizer) merge(l *link.PeerLink, u link.Update) {
	l.Remote = &link.Remote{Vector: u.Vector.Clone(), Origin: u.Origin}

	remote := u.Vector.Clone()
	remote.Timestamp -= l.Estimator.Offset()

	localWins := s.timeOrigin < u.Origin ||
		(s.timeOrigin == u.Origin && s.vector.Timestamp > remote.Timestamp)

	if localWins {
		s.metrics.UpdateReceived(false)
		logger.Debug("本地向量胜出", "clientID", log.TruncateID(l.ClientID, 8),
			"localOrigin", s.timeOrigin, "remoteOrigin", u.Origin)

		// 重新外推后广播到全部链路，后加入的链路不会主动 request
		now := s.now()
		corrected := s.vector.Clone()
		corrected.TimingStateVector = kinematics.ExtrapolateTo(s.vector.TimingStateVector, now)
		msg := link.Update{Vector: corrected, Origin: s.timeOrigin, Timestamp: now}
		for _, other := range s.links {
			s.send(other, msg)
		}
		s.metrics.UpdatesBroadcast.Add(float64(len(s.links)))
		s.recomputeSkew()
		return
	}

	s.metrics.UpdateReceived(true)
	if u.Origin < s.timeOrigin {
		s.timeOrigin = u.Origin
	}
	s.vector = types.ExtendedVector{
		TimingStateVector: remote.TimingStateVector,
		Hops:              hops.Extend(u.Vector.Hops, s.cfg.HopID),
		Version:           u.Vector.Version,
	}
	logger.Debug("采纳远端向量", "clientID", log.TruncateID(l.ClientID, 8),
		"origin", s.timeOrigin, "version", s.vector.Version, "hops", len(s.vector.Hops))

	s.recomputeSkew()
	s.publish()
	s.emitChange()
}

// recomputeSkew 按权威顺序选出最佳链路，skew 取其偏移估计
//
// 本节点自身比最佳链路更权威时 skew 为 0。
func (s *Synchronizer) recomputeSkew() {
	entries := make([]hops.Entry[*link.PeerLink], 0, len(s.links))
	for _, l := range s.links {
		if l.Remote == nil || !l.Estimator.HasEstimate() {
			continue
		}
		entries = append(entries, hops.Entry[*link.PeerLink]{
			Value:      l,
			Descriptor: hops.Descriptor{Origin: l.Remote.Origin, Hops: l.Remote.Vector.Hops},
			RTT:        l.Estimator.MinRTT(),
		})
	}

	skew := 0.0
	best, ok, err := hops.Best(entries)
	if err != nil {
		logger.Warn("链路排序出现一致性违例", "error", err)
	}
	if ok {
		local := hops.Descriptor{Origin: s.timeOrigin, Hops: s.vector.Hops}
		c, err := hops.Compare(best.Descriptor, local)
		if err != nil {
			logger.Warn("权威比较出现一致性违例", "clientID", log.TruncateID(best.Value.ClientID, 8), "error", err)
		}
		if err == nil && c < 0 {
			skew = best.Value.Estimator.Offset()
		}
	}

	if nearlyEqual(skew, s.skew) {
		return
	}
	s.skew = skew
	s.metrics.Skew.Set(skew)
	s.publish()

	logger.Debug("skew 变化", "skew", skew)
	if err := s.adjusts.Emit(types.EvtAdjust{Skew: skew}); err != nil {
		logger.Debug("发送 adjust 事件失败", "error", err)
	}
}
