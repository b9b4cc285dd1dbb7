package server

import (
	"time"

	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/media"
	log "github.com/sirupsen/logrus"
)

const (
	maxConsecutiveFailures = 5
	// Delay after teardown before a rebuild, so the capture hardware
	// fully releases its session.
	rebuildReleaseDelay = 500 * time.Millisecond
	busPollInterval     = 100 * time.Millisecond
	// Worker 1 starts staggered to avoid ISP session contention.
	sensorStagger = 100 * time.Millisecond
)

// backoffDelay returns the restart delay for the n-th consecutive
// failure: 200ms doubling through failure 5, then 10s flat.
func backoffDelay(failures int) time.Duration {
	if failures > maxConsecutiveFailures {
		return 10 * time.Second
	}
	return 200 * time.Millisecond << (failures - 1)
}

// runSensor is the per-sensor worker loop for stereo/mono modes: wait
// for a config, build, play, watch the bus and the config version,
// hot-swap or rebuild, back off on failures.
func (s *Server) runSensor(sensorID int) {
	if sensorID == 1 {
		log.Debugf("delaying camera 1 initialization by %s", sensorStagger)
		s.sleep(sensorStagger)
	}

	var seenVersion uint64
	consecutiveFailures := 0
	side := "left"
	if sensorID == 1 {
		side = "right"
	}

	for !s.stopRequested() {
		if consecutiveFailures >= maxConsecutiveFailures {
			log.Errorf("camera %d has failed %d times, sleeping 10s; send a config update to retry",
				sensorID, consecutiveFailures)
			s.sleep(10 * time.Second)
			if v := s.cell.Version(); v != seenVersion {
				log.Infof("config changed, resetting failure counter for camera %d", sensorID)
				consecutiveFailures = 0
			}
			continue
		}

		cfg, version := s.cell.Load()
		seenVersion = version
		if version == 0 {
			s.sleep(busPollInterval)
			continue
		}

		// Only camera 0 runs in mono mode; panoramic has its own worker.
		if (cfg.Mode == config.ModeMono && sensorID == 1) || cfg.Mode == config.ModePanoramic {
			s.sleep(time.Second)
			continue
		}

		pipe, err := s.buildSensorPipeline(sensorID, cfg)
		if err != nil {
			log.Errorf("camera %d build failed: %v", sensorID, err)
			consecutiveFailures++
			appstats.PipelineFailures.WithLabelValues(side).Inc()
			s.sleep(backoffDelay(consecutiveFailures))
			continue
		}

		s.publishPipeline(sensorID, pipe)

		if err := pipe.SetState(media.StatePlaying); err != nil {
			log.Errorf("unable to set camera %d pipeline to playing: %v", sensorID, err)
			stopPipeline(pipe)
			s.publishPipeline(sensorID, nil)
			consecutiveFailures++
			appstats.PipelineFailures.WithLabelValues(side).Inc()
			s.sleep(backoffDelay(consecutiveFailures))
			continue
		}

		if consecutiveFailures > 0 {
			log.Infof("camera %d recovered after %d failures", sensorID, consecutiveFailures)
		}
		consecutiveFailures = 0
		current := cfg
		log.WithField("pipeline", pipe.Name()).Infof("camera %d playing", sensorID)

		rebuild := false
		errorDuringStreaming := false
		for !s.stopRequested() && !rebuild {
			if msg := pipe.Bus().TimedPop(busPollInterval, media.MessageError|media.MessageEOS); msg != nil {
				log.Errorf("camera %d received error/EOS during streaming: %v", sensorID, msg.Err)
				rebuild = true
				errorDuringStreaming = true
				continue
			}

			if v := s.cell.Version(); v != seenVersion {
				newCfg, newVersion := s.cell.Load()
				seenVersion = newVersion
				if newVersion == 0 {
					log.Infof("streaming stopped, tearing down camera %d pipeline", sensorID)
					rebuild = true
				} else if current.HotSwappable(newCfg) {
					log.Info("config change detected, applying dynamic update")
					if err := updatePipelineProperties(pipe, newCfg); err != nil {
						log.Errorf("dynamic update failed, will rebuild pipeline: %v", err)
						rebuild = true
					} else {
						current = newCfg
						appstats.HotSwaps.Inc()
					}
				} else {
					log.Info("config change requires pipeline rebuild")
					rebuild = true
				}
			}
		}

		stopPipeline(pipe)
		s.publishPipeline(sensorID, nil)

		if rebuild && !s.stopRequested() {
			appstats.PipelineRebuilds.WithLabelValues(side).Inc()
			if errorDuringStreaming {
				consecutiveFailures++
				appstats.PipelineFailures.WithLabelValues(side).Inc()
			}
			if consecutiveFailures > 0 {
				delay := backoffDelay(consecutiveFailures)
				log.Errorf("camera %d had %d consecutive failures, waiting %s before retry",
					sensorID, consecutiveFailures, delay)
				s.sleep(delay)
			} else {
				log.Infof("waiting for camera %d to fully release", sensorID)
				s.sleep(rebuildReleaseDelay)
			}
		}
	}
}

func (s *Server) buildSensorPipeline(sensorID int, cfg config.StreamingConfig) (*media.Pipeline, error) {
	desc, err := StreamingPipeline(cfg, sensorID)
	if err != nil {
		return nil, err
	}
	side := "left"
	if sensorID == 1 {
		side = "right"
	}
	log.WithField("sensor", sensorID).Debugf("building pipeline: %s", desc)
	pipe, err := media.Parse(desc)
	if err != nil {
		return nil, err
	}
	pipe.SetName("pipeline_" + side)

	timing := &pipelineTiming{}
	if err := timing.Attach(pipe); err != nil {
		return nil, err
	}
	return pipe, nil
}

// updatePipelineProperties applies a hot-swappable change in place: only
// the encoder quality (JPEG) or bitrate (H.264/H.265) moves.
func updatePipelineProperties(pipe *media.Pipeline, cfg config.StreamingConfig) error {
	encoder, err := pipe.ByName("encoder")
	if err != nil {
		return err
	}
	switch cfg.Codec {
	case config.CodecJPEG:
		log.Infof("updating JPEG quality to %d", cfg.EncodingQuality)
		encoder.Set("quality", cfg.EncodingQuality)
	case config.CodecH264, config.CodecH265:
		log.Infof("updating bitrate to %d", cfg.Bitrate)
		encoder.Set("bitrate", cfg.Bitrate)
	}
	return nil
}

// stopPipeline drives a pipeline to null, tolerating a slow teardown.
func stopPipeline(pipe *media.Pipeline) {
	if pipe == nil {
		return
	}
	log.WithField("pipeline", pipe.Name()).Info("stopping the pipeline")
	if err := pipe.SetState(media.StateNull); err != nil {
		log.Errorf("failed to stop pipeline cleanly: %v", err)
	}
}
