// Package clock derives a smoothed offset between the local wall clock and
// a reference NTP server so that cross-device timestamps are comparable.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	log "github.com/sirupsen/logrus"
)

const (
	syncInterval  = 2 * time.Second
	samplesPerRun = 3
	sampleSpacing = 20 * time.Millisecond
	// Samples slower than this round-trip are too noisy to trust.
	maxSampleRTT = 20000 * time.Microsecond

	// Consecutive failed cycles before switching to the fallback server.
	fallbackThreshold = 5

	// EMA smoothing factor for the offset.
	alpha = 0.1
)

type sample struct {
	offsetUs int64
	rttUs    int64
}

// queryFunc performs one NTP exchange against host. Swapped out in tests.
type queryFunc func(host string) (*ntp.Response, error)

// Synchronizer maintains offsetUs such that
// referenceTimeUs ~= NonAdjustedTimeUs() + offsetUs.
// A dead reference never blocks callers: CurrentTimeUs always answers,
// degrading to the plain local clock while the offset is stale.
type Synchronizer struct {
	mu            sync.Mutex
	server        string
	fallback      string
	fallbackInUse bool

	offsetUs  atomic.Int64
	hasOffset atomic.Bool
	healthy   atomic.Bool

	consecutiveFailures atomic.Int32

	query queryFunc
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewSynchronizer(server, fallback string) *Synchronizer {
	return &Synchronizer{
		server:   server,
		fallback: fallback,
		query: func(host string) (*ntp.Response, error) {
			return ntp.QueryWithOptions(host, ntp.QueryOptions{
				Version: 4,
				Timeout: time.Second,
			})
		},
		done: make(chan struct{}),
	}
}

// Start launches the background sync loop.
func (s *Synchronizer) Start() {
	log.Infof("ntp: syncing against '%s' (fallback '%s')", s.server, s.fallback)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		s.syncOnce()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.syncOnce()
			}
		}
	}()
}

// Close stops the sync loop and waits for it to exit. The per-request
// 1 s timeout bounds the wait.
func (s *Synchronizer) Close() {
	close(s.done)
	s.wg.Wait()
}

// syncOnce takes up to samplesPerRun samples, keeps those under the RTT
// bound, applies the best one to the smoothed offset and updates health.
func (s *Synchronizer) syncOnce() {
	s.mu.Lock()
	host := s.server
	s.mu.Unlock()

	var good []sample
	var lastErr error
	for i := 0; i < samplesPerRun; i++ {
		resp, err := s.query(host)
		if err != nil {
			lastErr = err
			continue
		}
		rttUs := resp.RTT.Microseconds()
		if rttUs > maxSampleRTT.Microseconds() {
			log.Debugf("ntp: rejecting sample with rtt=%dus", rttUs)
			continue
		}
		good = append(good, sample{offsetUs: resp.ClockOffset.Microseconds(), rttUs: rttUs})
		select {
		case <-s.done:
			return
		case <-time.After(sampleSpacing):
		}
	}

	if len(good) == 0 {
		// One failing cycle, regardless of how many samples failed in it.
		if s.consecutiveFailures.Add(1) == 1 && lastErr != nil {
			log.Errorf("ntp: query to '%s' failed: %v; latency measurements may be inaccurate", host, lastErr)
		}
		s.healthy.Store(false)
		s.maybeFallback()
		return
	}

	best := good[0]
	for _, smp := range good[1:] {
		if smp.rttUs < best.rttUs {
			best = smp
		}
	}

	if !s.hasOffset.Load() {
		s.offsetUs.Store(best.offsetUs)
		s.hasOffset.Store(true)
	} else {
		prev := s.offsetUs.Load()
		s.offsetUs.Store(int64(alpha*float64(best.offsetUs) + (1-alpha)*float64(prev)))
	}

	if failures := s.consecutiveFailures.Swap(0); failures > 0 {
		log.Infof("ntp: sync recovered after %d failures", failures)
	}
	s.healthy.Store(true)
	log.Debugf("ntp: best sample offset=%dus rtt=%dus, smoothed=%dus",
		best.offsetUs, best.rttUs, s.offsetUs.Load())
}

// maybeFallback switches to the fallback server after fallbackThreshold
// consecutive failing cycles. Engaged at most once.
func (s *Synchronizer) maybeFallback() {
	if s.consecutiveFailures.Load() < fallbackThreshold {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallbackInUse || s.fallback == "" {
		return
	}
	log.Infof("ntp: primary '%s' unreachable after %d failures, falling back to '%s'",
		s.server, s.consecutiveFailures.Load(), s.fallback)
	s.server = s.fallback
	s.fallbackInUse = true
	s.consecutiveFailures.Store(0)
}

// Offset returns the smoothed adjustment in microseconds added to the
// local clock to obtain reference time; zero until the first accepted
// sample.
func (s *Synchronizer) Offset() int64 {
	return s.offsetUs.Load()
}

// IsHealthy reports whether the last cycle produced an accepted sample.
func (s *Synchronizer) IsHealthy() bool {
	return s.healthy.Load()
}

// CurrentTimeUs returns the reference-aligned wall clock in microseconds.
func (s *Synchronizer) CurrentTimeUs() uint64 {
	return uint64(int64(NonAdjustedTimeUs()) + s.offsetUs.Load())
}

// NonAdjustedTimeUs returns the raw local wall clock in microseconds.
func NonAdjustedTimeUs() uint64 {
	return uint64(time.Now().UnixMicro())
}
