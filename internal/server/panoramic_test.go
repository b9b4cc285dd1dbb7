package server

import (
	"net"
	"testing"
	"time"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchCamera_NoSelectorMeansNoSwitch(t *testing.T) {
	s := New(testConfig())
	assert.False(t, s.switchCamera(0))
}

func TestRunPanoramic_BuildsSelectorPipeline(t *testing.T) {
	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()

	cfg := testStreamingConfig()
	cfg.Mode = config.ModePanoramic
	cfg.PortLeft = sink.LocalAddr().(*net.UDPAddr).Port

	s := New(testConfig())
	s.cell.Store(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runPanoramic()
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s.selector.mu.Lock()
		ready := s.selector.selector != nil
		s.selector.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.selector.mu.Lock()
	require.NotNil(t, s.selector.selector, "selector must be published while playing")
	assert.Equal(t, windowSize, s.selector.padCount)
	s.selector.mu.Unlock()

	// Switching to a windowed pad succeeds; out-of-window pads do not.
	assert.True(t, s.switchCamera(padForCamera(5)))
	assert.False(t, s.switchCamera(windowSize))

	// Media flows to the sink.
	sink.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 65535)
	_, _, err = sink.ReadFromUDP(buf)
	assert.NoError(t, err, "panoramic pipeline should be streaming")

	s.RequestStop()
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("panoramic worker did not stop")
	}
}
