package player

import (
	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/media"
	"github.com/ctu-vras/telestream/internal/rtpext"
	log "github.com/sirupsen/logrus"
)

// attachProbes mirrors the server-side instrumentation: the udpsrc
// identity parses the timing header extensions, the downstream
// identities record per-stage deltas, and the appsink handoff stores the
// decoded frame.
func (p *Player) attachProbes(pipe *media.Pipeline, eye Eye) error {
	stats := p.stats[eye]

	udpsrcIdent, err := pipe.ByName("udpsrc_ident")
	if err != nil {
		return err
	}
	if err := udpsrcIdent.Connect("handoff", media.ProbeFunc(func(el *media.Element, buf *media.Buffer) {
		p.onRTPHeaderMetadata(stats, buf)
	})); err != nil {
		return err
	}

	for _, name := range []string{"rtpdepay_ident", "dec_ident", "queue_ident"} {
		el, err := pipe.ByName(name)
		if err != nil {
			return err
		}
		name := name
		if err := el.Connect("handoff", media.ProbeFunc(func(el *media.Element, buf *media.Buffer) {
			p.onIdentityHandoff(stats, name, pipe.Name())
		})); err != nil {
			return err
		}
	}

	appsink, err := pipe.ByName("appsink")
	if err != nil {
		return err
	}
	return appsink.Connect("new-sample", media.SampleFunc(func(el *media.Element, sample *media.Sample) {
		p.onNewSample(eye, sample)
	}))
}

// onRTPHeaderMetadata runs for every received packet: it records the UDP
// arrival timestamp and, on the first packet of each frame, copies the
// six server-side timing extensions into the eye's stats.
func (p *Player) onRTPHeaderMetadata(stats *StageLatencies, buf *media.Buffer) {
	timing, stamped, err := rtpext.Parse(buf.Data)
	if err != nil {
		log.Debugf("failed to parse RTP header: %v", err)
		return
	}
	stats.totalLatency.Store(0)

	if stamped {
		log.Tracef("new frame %d, packets in previous frame: %d",
			timing.FrameID, stats.packetsPerFrame.Load())
		stats.frameID.Store(timing.FrameID)
		stats.packetsPerFrame.Store(0)
		stats.camera.Store(timing.InterFrame)
		stats.vidConv.Store(timing.VidConv)
		stats.enc.Store(timing.Encoder)
		stats.rtpPay.Store(timing.Payloader)
		stats.rtpPayTimestamp.Store(timing.PayloaderExit)
	}

	// Recorded per packet so the last fragment's arrival wins; the
	// server clock is aligned through the synchronizer.
	now := p.ntp.CurrentTimeUs()
	stats.udpSrcTimestamp.Store(now)
	if payTs := stats.rtpPayTimestamp.Load(); payTs != 0 && now > payTs {
		stats.udpStream.Store(now - payTs)
	}
	stats.packetsPerFrame.Add(1)
}

// onIdentityHandoff computes the per-stage deltas; at the final probe it
// totals the frame and pushes the snapshot into the rolling history.
func (p *Player) onIdentityHandoff(stats *StageLatencies, ident, pipelineName string) {
	now := p.ntp.CurrentTimeUs()

	switch ident {
	case "rtpdepay_ident":
		stats.rtpDepayTimestamp.Store(now)
		stats.rtpDepay.Store(now - stats.udpSrcTimestamp.Load())

	case "dec_ident":
		stats.decTimestamp.Store(now)
		stats.dec.Store(now - stats.rtpDepayTimestamp.Load())

	case "queue_ident":
		stats.queueTimestamp.Store(now)
		stats.queue.Store(now - stats.decTimestamp.Load())
		total := stats.camera.Load() + stats.vidConv.Load() + stats.enc.Load() +
			stats.rtpPay.Load() + stats.udpStream.Load() + stats.rtpDepay.Load() +
			stats.dec.Load() + stats.queue.Load()
		stats.totalLatency.Store(total)

		stats.UpdateHistory()

		log.Debugf("%s latencies (us): camera=%d vidconv=%d enc=%d rtpPay=%d udpStream=%d rtpDepay=%d dec=%d queue=%d total=%d",
			pipelineName, stats.camera.Load(), stats.vidConv.Load(), stats.enc.Load(),
			stats.rtpPay.Load(), stats.udpStream.Load(), stats.rtpDepay.Load(),
			stats.dec.Load(), stats.queue.Load(), total)
	}
}

// onNewSample stores the decoded frame for the renderer. Texture-backed
// samples keep their handle; CPU-backed ones are copied into the eye's
// owned buffer.
func (p *Player) onNewSample(eye Eye, sample *media.Sample) {
	stats := p.stats[eye]
	frame := p.frames[eye]

	now := float64(p.ntp.CurrentTimeUs())
	prev := stats.currTimestamp.Load()
	stats.prevTimestamp.Store(prev)
	stats.currTimestamp.Store(now)
	stats.frameReady.Store(uint64(now))
	if prev != 0 {
		stats.fps.Store(1e6 / (now - prev))
	}

	caps := sample.Caps
	if caps.Memory == "texture" {
		target := caps.TextureTarget
		if target == "" {
			target = "2D"
		}
		frame.StoreTexture(sample.Buffer.TextureID, target, caps.Width, caps.Height)
	} else {
		frame.StoreData(sample.Buffer.Data)
	}
	appstats.FramesDecoded.WithLabelValues(eye.String()).Inc()
}
