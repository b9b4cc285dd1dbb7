// Package server implements the robot-side streaming supervisor: it owns
// the encode/transport pipelines, reacts to config versions pushed over
// the control exchange and stamps outgoing media with timing metadata.
package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/media"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	cfg  *config.Config
	cell *config.Cell

	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	pipelinesMu sync.Mutex
	pipelines   [2]*media.Pipeline

	selector *selectorState
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg:      cfg,
		cell:     &config.Cell{},
		stop:     make(chan struct{}),
		selector: &selectorState{},
	}
}

// Cell exposes the shared (config, version) pair to the control exchange.
func (s *Server) Cell() *config.Cell { return s.cell }

// RequestStop asks every worker to terminate. This is the process-level
// stop used by the stdin channel and signal handlers.
func (s *Server) RequestStop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stop)
	})
}

// StopStreaming tears the pipelines down without ending the process:
// the config cell returns to version zero, so workers release their
// pipelines and idle until the next start/update. Safe to call any
// number of times.
func (s *Server) StopStreaming() {
	s.cell.Reset()
	log.Info("streaming stopped, workers idling until the next config")
}

func (s *Server) stopRequested() bool { return s.stopped.Load() }

// sleep waits for d or until stop is requested, whichever is first.
func (s *Server) sleep(d time.Duration) {
	select {
	case <-s.stop:
	case <-time.After(d):
	}
}

// Run blocks until the workers exit. The first non-zero config decides
// the mode topology: panoramic runs a single selector-fed worker plus
// the camera-select listener; stereo/mono run one worker per sensor.
func (s *Server) Run() {
	log.Info("streaming driver running; waiting for updates")

	for !s.stopRequested() && s.cell.Version() == 0 {
		s.sleep(100 * time.Millisecond)
	}
	if s.stopRequested() {
		return
	}

	initial, _ := s.cell.Load()

	var wg sync.WaitGroup
	if initial.Mode == config.ModePanoramic {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.cameraSelectListener()
		}()
		go func() {
			defer wg.Done()
			s.runPanoramic()
		}()
	} else {
		for sensorID := 0; sensorID < 2; sensorID++ {
			wg.Add(1)
			sensorID := sensorID
			go func() {
				defer wg.Done()
				s.runSensor(sensorID)
			}()
		}
	}
	wg.Wait()

	s.pipelinesMu.Lock()
	for _, pipe := range s.pipelines {
		stopPipeline(pipe)
	}
	s.pipelinesMu.Unlock()
	log.Info("all streaming workers stopped")
}

// publishPipeline records a worker's live pipeline handle for the
// camera-select path and shutdown.
func (s *Server) publishPipeline(slot int, pipe *media.Pipeline) {
	s.pipelinesMu.Lock()
	s.pipelines[slot] = pipe
	s.pipelinesMu.Unlock()
}

func (s *Server) currentPipeline(slot int) *media.Pipeline {
	s.pipelinesMu.Lock()
	defer s.pipelinesMu.Unlock()
	return s.pipelines[slot]
}
