// Package player implements the headset-side consumer: it owns the
// receive/decode pipelines, extracts per-stage timing from incoming
// media and exposes the most recent decoded frame and averaged latency
// snapshots to the renderer.
package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/clock"
	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/media"
	log "github.com/sirupsen/logrus"
)

type Player struct {
	cfg *config.Config
	ntp *clock.Synchronizer

	mu        sync.Mutex
	pipelines [2]*media.Pipeline
	frames    [2]*DecodedFrame
	stats     [2]*StageLatencies
	current   config.StreamingConfig
}

func New(cfg *config.Config, ntp *clock.Synchronizer) *Player {
	p := &Player{cfg: cfg, ntp: ntp}
	for eye := range p.frames {
		p.frames[eye] = &DecodedFrame{}
		p.stats[eye] = &StageLatencies{}
		p.frames[eye].Stats = p.stats[eye]
	}
	return p
}

// Frame returns the renderer's view of an eye. The pointer stays valid
// across frames; its buffer is replaced on reconfiguration.
func (p *Player) Frame(eye Eye) *DecodedFrame { return p.frames[eye] }

// Stats returns the per-eye rolling latency record.
func (p *Player) Stats(eye Eye) *StageLatencies { return p.stats[eye] }

func receivePipelineDescription(codec config.Codec) (string, error) {
	var dec string
	switch codec {
	case config.CodecJPEG:
		dec = "jpegdec"
	case config.CodecH264:
		dec = "h264dec"
	case config.CodecH265:
		dec = "h265dec"
	default:
		return "", fmt.Errorf("unsupported codec %s", codec)
	}
	return fmt.Sprintf(
		"udpsrc name=udpsrc ! identity name=udpsrc_ident"+
			" ! capsfilter name=rtp_capsfilter ! rtpdepay name=depay ! identity name=rtpdepay_ident"+
			" ! %s name=dec ! identity name=dec_ident"+
			" ! queue name=frame_queue ! identity name=queue_ident ! appsink name=appsink", dec), nil
}

// Configure tears down any running pipelines and builds new ones for the
// given streaming config. The engine stops each pipeline's flow
// goroutines before handles are released, so no callback runs against a
// torn-down pipeline.
func (p *Player) Configure(stream config.StreamingConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.Info("(re)configuring receive pipelines")
	p.teardownLocked()

	// Reallocate per-eye buffers and stats for the new geometry.
	for eye := range p.frames {
		p.frames[eye].Reset(stream.Resolution.Width, stream.Resolution.Height)
		p.stats[eye] = &StageLatencies{}
		p.frames[eye].Stats = p.stats[eye]
	}

	single := stream.Mode == config.ModeMono || stream.Mode == config.ModePanoramic

	ports := [2]int{stream.PortLeft, stream.PortRight}
	for eye := EyeLeft; eye <= EyeRight; eye++ {
		if single && eye == EyeRight {
			p.pipelines[eye] = nil
			continue
		}
		pipe, err := p.buildEyePipeline(eye, ports[eye], stream)
		if err != nil {
			p.teardownLocked()
			return err
		}
		p.pipelines[eye] = pipe
	}

	for _, pipe := range p.pipelines {
		if pipe == nil {
			continue
		}
		if err := pipe.SetState(media.StatePlaying); err != nil {
			p.teardownLocked()
			return err
		}
		log.WithField("pipeline", pipe.Name()).Info("receive pipeline playing")
	}
	p.current = stream
	return nil
}

func (p *Player) buildEyePipeline(eye Eye, port int, stream config.StreamingConfig) (*media.Pipeline, error) {
	desc, err := receivePipelineDescription(stream.Codec)
	if err != nil {
		return nil, err
	}
	pipe, err := media.Parse(desc)
	if err != nil {
		return nil, err
	}
	pipe.SetName("pipeline_" + eye.String())

	udpsrc, err := pipe.ByName("udpsrc")
	if err != nil {
		return nil, err
	}
	udpsrc.Set("port", port)

	capsfilter, err := pipe.ByName("rtp_capsfilter")
	if err != nil {
		return nil, err
	}
	capsfilter.Set("encoding-name", stream.Codec.String())
	capsfilter.Set("payload", int(stream.Codec.PayloadType()))
	capsfilter.Set("x-dimensions", fmt.Sprintf("%d,%d", stream.Resolution.Width, stream.Resolution.Height))

	if err := p.attachProbes(pipe, eye); err != nil {
		return nil, err
	}
	return pipe, nil
}

// Close stops all pipelines.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
}

func (p *Player) teardownLocked() {
	for eye, pipe := range p.pipelines {
		if pipe == nil {
			continue
		}
		log.WithField("pipeline", pipe.Name()).Info("stopping receive pipeline")
		pipe.SendEOS()
		if err := pipe.SetState(media.StateNull); err != nil {
			log.Errorf("failed to stop %s cleanly: %v", pipe.Name(), err)
		}
		p.pipelines[eye] = nil
	}
}

// PublishStats pushes averaged snapshots to the metrics surface every
// interval until stop is closed.
func (p *Player) PublishStats(interval time.Duration, stop <-chan struct{}, publish func(eye Eye, snap Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for eye := EyeLeft; eye <= EyeRight; eye++ {
				stats := p.stats[eye]
				if stats.HistoryLen() == 0 {
					continue
				}
				snap := stats.AveragedSnapshot()
				updateLatencyGauges(eye, snap)
				if publish != nil {
					publish(eye, snap)
				}
			}
		}
	}
}

func updateLatencyGauges(eye Eye, snap Snapshot) {
	set := func(stage string, v uint64) {
		appstats.StageLatency.WithLabelValues(eye.String(), stage).Set(float64(v))
	}
	set("camera", snap.Camera)
	set("vidConv", snap.VidConv)
	set("enc", snap.Enc)
	set("rtpPay", snap.RTPPay)
	set("udpStream", snap.UDPStream)
	set("rtpDepay", snap.RTPDepay)
	set("dec", snap.Dec)
	set("queue", snap.Queue)
	set("presentation", snap.Presentation)
	set("total", snap.TotalLatency)
}
