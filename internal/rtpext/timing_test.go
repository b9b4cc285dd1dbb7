package rtpext

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPacket(t *testing.T, seq uint16) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    26,
			SequenceNumber: seq,
			Timestamp:      1500,
			SSRC:           0xdecafbad,
		},
		Payload: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestStampParse_RoundTrip(t *testing.T) {
	in := Timing{
		FrameID:       42,
		InterFrame:    16666,
		VidConv:       1200,
		Encoder:       4300,
		Payloader:     800,
		PayloaderExit: 1700000000000000,
	}
	stamped, err := Stamp(rawPacket(t, 1), in)
	require.NoError(t, err)

	out, ok, err := Parse(stamped)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestStamp_CarriesExactlySixExtensions(t *testing.T) {
	stamped, err := Stamp(rawPacket(t, 7), Timing{FrameID: 1})
	require.NoError(t, err)

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(stamped))
	require.True(t, pkt.Header.Extension)
	assert.Len(t, pkt.Header.GetExtensionIDs(), 6)
	for id := uint8(1); id <= 6; id++ {
		assert.Len(t, pkt.Header.GetExtension(id), 8, "extension %d", id)
	}
	// Payload survives the rewrite.
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, pkt.Payload)
}

func TestParse_UnstampedPacket(t *testing.T) {
	_, ok, err := Parse(rawPacket(t, 9))
	require.NoError(t, err)
	assert.False(t, ok, "fragments after the first packet carry no timing block")
}

func TestParse_NetworkByteOrder(t *testing.T) {
	stamped, err := Stamp(rawPacket(t, 3), Timing{FrameID: 0x0102030405060708})
	require.NoError(t, err)

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(stamped))
	ext := pkt.Header.GetExtension(IDFrameID)
	require.Len(t, ext, 8)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, ext)
}
