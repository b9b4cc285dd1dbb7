// Package rtpext encodes the per-frame timing block carried as RFC 8285
// one-byte RTP header extensions on the first packet of every frame.
//
// Values are committed to network byte order on the wire on both ends.
package rtpext

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
)

// Extension IDs of the timing block. Each value is an 8-byte unsigned
// integer in microseconds (or a counter for FrameID).
const (
	IDFrameID       = 1 // monotonic per-flow frame counter
	IDInterFrame    = 2 // camera inter-frame duration
	IDVidConv       = 3 // video-convert stage duration
	IDEncoder       = 4 // encoder stage duration
	IDPayloader     = 5 // payloader stage duration
	IDPayloaderExit = 6 // payloader exit timestamp, server clock
)

// Timing is the decoded extension block.
type Timing struct {
	FrameID       uint64
	InterFrame    uint64
	VidConv       uint64
	Encoder       uint64
	Payloader     uint64
	PayloaderExit uint64
}

// Stamp attaches the six-extension timing block to a serialized RTP
// packet and returns the re-serialized packet.
func Stamp(raw []byte, t Timing) ([]byte, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("rtpext: unmarshal: %w", err)
	}
	fields := []struct {
		id  uint8
		val uint64
	}{
		{IDFrameID, t.FrameID},
		{IDInterFrame, t.InterFrame},
		{IDVidConv, t.VidConv},
		{IDEncoder, t.Encoder},
		{IDPayloader, t.Payloader},
		{IDPayloaderExit, t.PayloaderExit},
	}
	for _, f := range fields {
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, f.val)
		if err := pkt.Header.SetExtension(f.id, payload); err != nil {
			return nil, fmt.Errorf("rtpext: set extension %d: %w", f.id, err)
		}
	}
	out, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("rtpext: marshal: %w", err)
	}
	return out, nil
}

// Parse extracts the timing block from a serialized RTP packet. The
// second return is false when the packet carries no timing block (i.e.
// it is not the first packet of a frame).
func Parse(raw []byte) (Timing, bool, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return Timing{}, false, fmt.Errorf("rtpext: unmarshal: %w", err)
	}
	first := pkt.Header.GetExtension(IDFrameID)
	if first == nil {
		return Timing{}, false, nil
	}
	get := func(id uint8) uint64 {
		b := pkt.Header.GetExtension(id)
		if len(b) < 8 {
			return 0
		}
		return binary.BigEndian.Uint64(b)
	}
	return Timing{
		FrameID:       get(IDFrameID),
		InterFrame:    get(IDInterFrame),
		VidConv:       get(IDVidConv),
		Encoder:       get(IDEncoder),
		Payloader:     get(IDPayloader),
		PayloaderExit: get(IDPayloaderExit),
	}, true, nil
}
