package offset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_TwoWayOffset(t *testing.T) {
	e := NewEstimator(DefaultSampleSize, DefaultWindowSize)

	e.RecordPing(100)
	got, ok := e.RecordPong(150.5, 101)
	require.True(t, ok)
	// 150.5 - (100 + 101) / 2
	assert.InDelta(t, 50.0, got, 1e-9)
	assert.Equal(t, time.Second, e.MinRTT())
}

func TestEstimator_PongWithoutPing(t *testing.T) {
	e := NewEstimator(0, 0)
	_, ok := e.RecordPong(1, 2)
	assert.False(t, ok)
	assert.False(t, e.HasEstimate())
	assert.Equal(t, 0.0, e.Offset())
}

func TestEstimator_MeanOfLastFive(t *testing.T) {
	e := NewEstimator(5, 60)

	// 偏移依次为 10, 20, ..., 70
	for i := 1; i <= 7; i++ {
		send := float64(i * 10)
		e.RecordPing(send)
		_, ok := e.RecordPong(send+float64(i*10), send)
		require.True(t, ok)
	}

	// 最近五个：30..70
	assert.InDelta(t, 50.0, e.Offset(), 1e-9)
}

func TestEstimator_DuplicatePongIgnored(t *testing.T) {
	e := NewEstimator(5, 60)
	e.RecordPing(0)
	_, ok := e.RecordPong(1, 0)
	require.True(t, ok)
	_, ok = e.RecordPong(100, 0)
	assert.False(t, ok)
	assert.InDelta(t, 1.0, e.Offset(), 1e-9)
}

func TestEstimator_LatePongPairsWithOldestPing(t *testing.T) {
	e := NewEstimator(5, 60)

	// 第一个 pong 在第二个 ping 发出之后才到达
	e.RecordPing(0)
	e.RecordPing(1)

	got, ok := e.RecordPong(10.3, 1.5)
	require.True(t, ok)
	// 10.3 - (0 + 1.5) / 2
	assert.InDelta(t, 9.55, got, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, e.MinRTT())

	_, ok = e.RecordPong(10.8, 2.0)
	require.True(t, ok)
	// 第二个样本 10.8 - (1 + 2) / 2 = 9.3
	assert.InDelta(t, (9.55+9.3)/2, e.Offset(), 1e-9)
	assert.Equal(t, time.Second, e.MinRTT())

	_, ok = e.RecordPong(11, 2.5)
	assert.False(t, ok, "no ping left to answer")
}

func TestEstimator_PongBeforeSendRejected(t *testing.T) {
	e := NewEstimator(5, 60)
	e.RecordPing(10)
	_, ok := e.RecordPong(12, 9)
	assert.False(t, ok)
	assert.False(t, e.HasEstimate())
	assert.Equal(t, time.Duration(0), e.MinRTT())
}

func TestSelectMostLikelyOffset_Window(t *testing.T) {
	samples := make([]Sample, 0, 70)
	// 最早的样本 RTT 最小，但不在最近 60 个之内
	samples = append(samples, Sample{Offset: -1, RTT: time.Microsecond})
	for i := 0; i < 69; i++ {
		samples = append(samples, Sample{Offset: float64(i), RTT: time.Duration(100+i%7) * time.Millisecond})
	}
	samples[40] = Sample{Offset: 42, RTT: 5 * time.Millisecond}

	best, ok := SelectMostLikelyOffset(samples, 60)
	require.True(t, ok)
	assert.Equal(t, 42.0, best.Offset)

	w := NewWindow(60)
	for _, s := range samples {
		w.Add(s)
	}
	assert.Equal(t, 60, w.Len())
	fromWindow, ok := w.MostLikely()
	require.True(t, ok)
	assert.Equal(t, best, fromWindow)
}

func TestSelectMostLikelyOffset_Empty(t *testing.T) {
	_, ok := SelectMostLikelyOffset(nil, 60)
	assert.False(t, ok)
}
