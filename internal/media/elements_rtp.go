package media

import (
	"fmt"

	"github.com/pion/rtp"
	log "github.com/sirupsen/logrus"
)

const defaultMTU = 1300

// rtpPay packetizes encoded frames into RTP. The first packet of a frame
// is where supervisors attach the timing header extension (via a probe on
// the downstream identity); the marker bit closes each frame.
type rtpPay struct {
	seq       uint16
	ssrc      uint32
	clockBase uint32
}

func (p *rtpPay) start(el *Element) error {
	// Stable per-pipeline SSRC derived from the element identity.
	p.ssrc = 0
	for _, c := range el.pipe.Name() + el.name {
		p.ssrc = p.ssrc*31 + uint32(c)
	}
	return nil
}

func (p *rtpPay) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	mtu := el.intProp("mtu", defaultMTU)
	pt := uint8(el.intProp("pt", 26))
	fps := buf.Caps.FPS
	if fps <= 0 {
		fps = 30
	}
	// 90 kHz media clock.
	p.clockBase += uint32(90000 / fps)

	var out []*Buffer
	data := buf.Data
	for off := 0; off < len(data); off += mtu {
		end := off + mtu
		if end > len(data) {
			end = len(data)
		}
		p.seq++
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    pt,
				SequenceNumber: p.seq,
				Timestamp:      p.clockBase,
				SSRC:           p.ssrc,
				Marker:         end == len(data),
			},
			Payload: data[off:end],
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("rtp marshal: %w", err)
		}
		out = append(out, &Buffer{
			Data:     raw,
			FrameID:  buf.FrameID,
			KeyFrame: buf.KeyFrame,
			Marker:   pkt.Header.Marker,
			Caps: Caps{
				MediaType:   "application/x-rtp",
				Encoding:    buf.Caps.Encoding,
				PayloadType: pt,
				Width:       buf.Caps.Width,
				Height:      buf.Caps.Height,
				FPS:         buf.Caps.FPS,
			},
		})
	}
	return out, nil
}

// rtpDepay reassembles frames from RTP packets. Delivery is best-effort:
// a sequence gap drops the frame being assembled and resynchronizes on
// the next frame boundary.
type rtpDepay struct {
	unwrapper sequenceUnwrapper
	lastSeq   int64
	assembly  []byte
	caps      Caps
	broken    bool
	frames    uint64
}

func (d *rtpDepay) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf.Data); err != nil {
		return nil, fmt.Errorf("rtp unmarshal: %w", err)
	}

	seq := d.unwrapper.unwrap(pkt.SequenceNumber)
	if d.lastSeq != 0 && seq != d.lastSeq+1 {
		if len(d.assembly) > 0 {
			log.Debugf("rtpdepay %s: sequence gap (%d -> %d), dropping partial frame",
				el.name, d.lastSeq, seq)
		}
		d.assembly = nil
		d.broken = true
	}
	d.lastSeq = seq

	d.assembly = append(d.assembly, pkt.Payload...)
	d.caps = buf.Caps
	if !pkt.Marker {
		return nil, nil
	}

	frame := d.assembly
	d.assembly = nil
	if d.broken {
		// First marker after a gap closes the damaged frame; skip it.
		d.broken = false
		return nil, nil
	}
	d.frames++
	caps := d.caps
	switch caps.Encoding {
	case "JPEG":
		caps.MediaType = "image/jpeg"
	case "H264":
		caps.MediaType = "video/x-h264"
	case "H265":
		caps.MediaType = "video/x-h265"
	}
	return []*Buffer{{
		Data:    frame,
		FrameID: d.frames,
		Caps:    caps,
	}}, nil
}
