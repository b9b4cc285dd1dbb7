package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/media"
	log "github.com/sirupsen/logrus"
)

// selectorState serializes camera switching against pipeline rebuilds.
type selectorState struct {
	mu       sync.Mutex
	selector *media.Element
	padCount int
}

func (s *selectorState) set(el *media.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selector = el
	if el != nil {
		s.padCount = el.PadCount()
	} else {
		s.padCount = 0
	}
}

// runPanoramic supervises the single selector-fed pipeline.
func (s *Server) runPanoramic() {
	var seenVersion uint64

	for !s.stopRequested() {
		cfg, version := s.cell.Load()
		seenVersion = version
		if version == 0 {
			s.sleep(100 * time.Millisecond)
			continue
		}
		if cfg.Mode != config.ModePanoramic {
			s.sleep(100 * time.Millisecond)
			continue
		}

		desc, err := PanoramicPipeline(cfg)
		if err != nil {
			log.Errorf("failed to build panoramic pipeline: %v", err)
			s.sleep(time.Second)
			continue
		}
		log.Debugf("building panoramic pipeline: %s", desc)
		pipe, err := media.Parse(desc)
		if err != nil {
			log.Errorf("failed to build panoramic pipeline: %v", err)
			s.sleep(time.Second)
			continue
		}
		pipe.SetName("pipeline_panoramic")

		sel, err := pipe.ByName("sel")
		if err != nil {
			log.Errorf("failed to find input-selector element: %v", err)
			stopPipeline(pipe)
			continue
		}

		timing := &pipelineTiming{}
		if err := timing.Attach(pipe); err != nil {
			log.Errorf("failed to attach latency instrumentation: %v", err)
			stopPipeline(pipe)
			continue
		}

		s.selector.set(sel)
		s.publishPipeline(0, pipe)

		if err := pipe.SetState(media.StatePlaying); err != nil {
			log.Errorf("unable to set panoramic pipeline to playing: %v", err)
			s.selector.set(nil)
			stopPipeline(pipe)
			s.publishPipeline(0, nil)
			appstats.PipelineFailures.WithLabelValues("panoramic").Inc()
			s.sleep(time.Second)
			continue
		}

		log.Infof("panoramic pipeline playing with %d cameras", sel.PadCount())

		rebuild := false
		for !s.stopRequested() && !rebuild {
			if msg := pipe.Bus().TimedPop(busPollInterval, media.MessageError|media.MessageEOS); msg != nil {
				log.Errorf("panoramic pipeline received error/EOS: %v", msg.Err)
				rebuild = true
				continue
			}

			if v := s.cell.Version(); v != seenVersion {
				newCfg, newVersion := s.cell.Load()
				seenVersion = newVersion
				switch {
				case newVersion == 0:
					log.Info("streaming stopped, tearing down panoramic pipeline")
					rebuild = true
				case newCfg.Mode != config.ModePanoramic:
					log.Info("video mode changed from panoramic, rebuilding")
					rebuild = true
				case cfg.HotSwappable(newCfg):
					if err := updatePipelineProperties(pipe, newCfg); err != nil {
						log.Errorf("dynamic update failed: %v", err)
						rebuild = true
					} else {
						cfg = newCfg
						appstats.HotSwaps.Inc()
					}
				default:
					log.Info("panoramic config change requires rebuild")
					rebuild = true
				}
			}
		}

		// Exclude the switch path while tearing down.
		s.selector.set(nil)
		stopPipeline(pipe)
		s.publishPipeline(0, nil)

		if rebuild && !s.stopRequested() {
			appstats.PipelineRebuilds.WithLabelValues("panoramic").Inc()
			log.Info("waiting for cameras to fully release")
			s.sleep(rebuildReleaseDelay)
		}
	}
}

// cameraSelectListener receives single-byte camera indices on the select
// port and moves the selector's active pad, forcing a key frame on
// inter-frame codecs so the receiver resynchronizes cleanly.
func (s *Server) cameraSelectListener() {
	port := s.cfg.Server.CameraSelectPort
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		log.Errorf("failed to bind camera select socket on port %d: %v", port, err)
		return
	}
	defer conn.Close()
	log.Infof("camera select listener started on port %d", port)

	buf := make([]byte, 16)
	currentCamera := 0

	for !s.stopRequested() {
		// Bounded read so stop requests are noticed.
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil || n < 1 {
			continue
		}

		camera := int(buf[0])
		if camera < 0 || camera >= PanoramicNumCameras {
			continue
		}
		if camera == currentCamera {
			continue
		}

		padIndex := padForCamera(camera)
		if padIndex < 0 {
			log.Infof("camera %d not available, ignoring", camera)
			continue
		}

		if !s.switchCamera(padIndex) {
			continue
		}
		currentCamera = camera
		log.Infof("switched to camera %d (pad %d)", camera, padIndex)
		appstats.CameraSwitches.Inc()

		cfg, _ := s.cell.Load()
		if cfg.Codec == config.CodecH264 || cfg.Codec == config.CodecH265 {
			s.forceKeyFrame()
		}
	}
	log.Info("camera select listener stopped")
}

// switchCamera sets the selector's active pad under the selector lock,
// mutually exclusive with rebuilds.
func (s *Server) switchCamera(padIndex int) bool {
	s.selector.mu.Lock()
	defer s.selector.mu.Unlock()
	if s.selector.selector == nil || padIndex >= s.selector.padCount {
		return false
	}
	s.selector.selector.Set("active-pad", fmt.Sprintf("sink_%d", padIndex))
	return true
}

// forceKeyFrame pushes a force-key-unit event upstream to the encoder.
func (s *Server) forceKeyFrame() {
	pipe := s.currentPipeline(0)
	if pipe == nil {
		return
	}
	encoder, err := pipe.ByName("encoder")
	if err != nil {
		return
	}
	encoder.SendUpstreamEvent(media.ForceKeyUnit{})
}
