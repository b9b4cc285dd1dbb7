package server

import (
	"net"
	"testing"
	"time"

	"github.com/ctu-vras/telestream/internal/media"
	"github.com/ctu-vras/telestream/internal/rtpext"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The first RTP packet of every frame must carry the six-extension
// timing block; later fragments of the same frame must carry none.
func TestTiming_StampsFirstPacketOfEachFrame(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()
	port := listener.LocalAddr().(*net.UDPAddr).Port

	cfg := testStreamingConfig()
	cfg.PortLeft = port

	s := New(testConfig())
	pipe, err := s.buildSensorPipeline(0, cfg)
	require.NoError(t, err)
	require.NoError(t, pipe.SetState(media.StatePlaying))
	defer pipe.SetState(media.StateNull)

	type packet struct {
		stamped bool
		marker  bool
		timing  rtpext.Timing
	}
	var packets []packet

	listener.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 65535)
	for len(packets) < 24 {
		n, _, err := listener.ReadFromUDP(buf)
		require.NoError(t, err, "no media arrived")

		raw := make([]byte, n)
		copy(raw, buf[:n])

		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(raw))

		timing, stamped, err := rtpext.Parse(raw)
		require.NoError(t, err)
		packets = append(packets, packet{stamped: stamped, marker: pkt.Marker, timing: timing})
	}

	stampedCount := 0
	for i, p := range packets {
		if i == 0 {
			// The capture may start mid-frame; skip alignment of the
			// very first packet.
			continue
		}
		if packets[i-1].marker {
			assert.True(t, p.stamped, "packet %d starts a frame and must be stamped", i)
		} else {
			assert.False(t, p.stamped, "packet %d is a later fragment and must not be stamped", i)
		}
		if p.stamped {
			stampedCount++
			assert.NotZero(t, p.timing.PayloaderExit)
		}
	}
	assert.Greater(t, stampedCount, 0)

	// Frame ids advance monotonically across stamped packets.
	var last uint64
	first := true
	for _, p := range packets {
		if !p.stamped {
			continue
		}
		if !first {
			assert.Equal(t, last+1, p.timing.FrameID)
		}
		last = p.timing.FrameID
		first = false
	}
}
