package server

import (
	"sync"

	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/clock"
	"github.com/ctu-vras/telestream/internal/media"
	"github.com/ctu-vras/telestream/internal/rtpext"
	log "github.com/sirupsen/logrus"
)

// pipelineTiming is the per-pipeline instrumentation state. One instance
// is bound to the four identity probes of a pipeline at build time, so
// state never leaks across pipelines or rebuilds.
type pipelineTiming struct {
	mu sync.Mutex

	frameID        uint64
	frameIDStamped bool

	lastSourceTime uint64
	frameDuration  uint64

	// Stage timestamps of the frame in flight:
	// [0]=camsrc [1]=vidconv [2]=enc [3]=rtppay.
	stamps []uint64
}

// Attach binds the timing probes to the four named instrumentation
// points of a freshly parsed pipeline.
func (t *pipelineTiming) Attach(p *media.Pipeline) error {
	for _, name := range []string{"camsrc_ident", "vidconv_ident", "enc_ident", "rtppay_ident"} {
		el, err := p.ByName(name)
		if err != nil {
			return err
		}
		if err := el.Connect("handoff", media.ProbeFunc(t.onHandoff)); err != nil {
			return err
		}
	}
	return nil
}

// onHandoff implements the stamping protocol: camsrc arms a new frame,
// the intermediate identities append stage timestamps, and the first
// rtppay buffer of each frame receives the header-extension block.
func (t *pipelineTiming) onHandoff(el *media.Element, buf *media.Buffer) {
	now := clock.NonAdjustedTimeUs()

	t.mu.Lock()
	defer t.mu.Unlock()

	switch el.Name() {
	case "camsrc_ident":
		if t.lastSourceTime != 0 {
			t.frameDuration = now - t.lastSourceTime
		}
		t.lastSourceTime = now
		if len(t.stamps) > 0 {
			// Previous frame completed all stages; arm a new one.
			t.stamps = t.stamps[:0]
			t.frameIDStamped = false
		}
		t.stamps = append(t.stamps, now)

	case "vidconv_ident", "enc_ident":
		t.stamps = append(t.stamps, now)

	case "rtppay_ident":
		if t.frameIDStamped {
			return // later fragment of the same frame
		}
		t.stamps = append(t.stamps, now)
		if len(t.stamps) < 4 {
			return // incomplete stage record, skip stamping this frame
		}
		timing := rtpext.Timing{
			FrameID:       t.frameID,
			InterFrame:    t.frameDuration,
			VidConv:       t.stamps[1] - t.stamps[0],
			Encoder:       t.stamps[2] - t.stamps[1],
			Payloader:     t.stamps[3] - t.stamps[2],
			PayloaderExit: t.stamps[3],
		}
		stamped, err := rtpext.Stamp(buf.Data, timing)
		if err != nil {
			log.Errorf("failed to add the timing header extension: %v", err)
			return
		}
		buf.Data = stamped
		t.frameIDStamped = true
		t.frameID++
		appstats.FramesStamped.Inc()
	}
}
