package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageLatencies_HistoryBounded(t *testing.T) {
	s := &StageLatencies{}
	for i := 0; i < HistorySize*2; i++ {
		s.frameID.Store(uint64(i))
		s.UpdateHistory()
		assert.LessOrEqual(t, s.HistoryLen(), HistorySize)
	}
	assert.Equal(t, HistorySize, s.HistoryLen())
}

func TestAveragedSnapshot_EmptyHistoryFallsBackToLive(t *testing.T) {
	s := &StageLatencies{}
	s.camera.Store(100)
	snap := s.AveragedSnapshot()
	assert.EqualValues(t, 100, snap.Camera)
}

func TestAveragedSnapshot_AveragesDurationsKeepsLatestMetadata(t *testing.T) {
	s := &StageLatencies{}

	s.camera.Store(100)
	s.dec.Store(10)
	s.frameID.Store(7)
	s.udpSrcTimestamp.Store(1111)
	s.UpdateHistory()

	s.camera.Store(300)
	s.dec.Store(30)
	s.frameID.Store(8)
	s.udpSrcTimestamp.Store(2222)
	s.UpdateHistory()

	avg := s.AveragedSnapshot()
	assert.EqualValues(t, 200, avg.Camera)
	assert.EqualValues(t, 20, avg.Dec)

	// Metadata and absolute timestamps come from the most recent entry.
	assert.EqualValues(t, 8, avg.FrameID)
	assert.EqualValues(t, 2222, avg.UDPSrcTimestamp)
}

func TestAveragedSnapshot_EvictionKeepsNewest(t *testing.T) {
	s := &StageLatencies{}
	for i := 1; i <= HistorySize+10; i++ {
		s.camera.Store(uint64(i))
		s.UpdateHistory()
	}
	avg := s.AveragedSnapshot()
	// History holds values 11..60, averaging to 35.5 (integer 35).
	assert.EqualValues(t, 35, avg.Camera)
}

func TestFramePresented(t *testing.T) {
	s := &StageLatencies{}
	s.frameReady.Store(1000)
	s.FramePresented(1800)
	assert.EqualValues(t, 800, s.presentation.Load())

	// A presentation time before frame-ready is dropped, not wrapped.
	s.FramePresented(500)
	assert.EqualValues(t, 800, s.presentation.Load())
}

func TestDecodedFrame_ResetClearsTextureState(t *testing.T) {
	f := &DecodedFrame{}
	f.StoreTexture(42, "external-oes", 1920, 1080)
	assert.True(t, f.HasTexture)

	f.Reset(1280, 720)
	assert.False(t, f.HasTexture)
	assert.Equal(t, "2D", f.TextureTarget)
	assert.Len(t, f.Data(), 1280*720*3)
}
