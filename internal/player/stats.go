package player

import (
	"sync"
	"sync/atomic"
)

// HistorySize bounds the rolling snapshot history used for averaging.
const HistorySize = 50

// Snapshot is a copyable view of StageLatencies for passing between
// threads. Durations are microseconds.
type Snapshot struct {
	PrevTimestamp float64 `json:"prevTimestamp"`
	CurrTimestamp float64 `json:"currTimestamp"`
	FPS           float64 `json:"fps"`

	Camera       uint64 `json:"camera"`
	VidConv      uint64 `json:"vidConv"`
	Enc          uint64 `json:"enc"`
	RTPPay       uint64 `json:"rtpPay"`
	UDPStream    uint64 `json:"udpStream"`
	RTPDepay     uint64 `json:"rtpDepay"`
	Dec          uint64 `json:"dec"`
	Queue        uint64 `json:"queue"`
	Presentation uint64 `json:"presentation"`
	TotalLatency uint64 `json:"totalLatency"`

	RTPPayTimestamp   uint64 `json:"rtpPayTimestamp"`
	UDPSrcTimestamp   uint64 `json:"udpSrcTimestamp"`
	RTPDepayTimestamp uint64 `json:"rtpDepayTimestamp"`
	DecTimestamp      uint64 `json:"decTimestamp"`
	QueueTimestamp    uint64 `json:"queueTimestamp"`
	FrameReady        uint64 `json:"frameReadyTimestamp"`

	FrameID         uint64 `json:"frameId"`
	PacketsPerFrame uint32 `json:"packetsPerFrame"`
}

// StageLatencies is the per-eye rolling latency record. Per-frame fields
// are atomics so the render thread reads without locking; the history
// ring has its own mutex.
type StageLatencies struct {
	prevTimestamp atomicFloat64
	currTimestamp atomicFloat64
	fps           atomicFloat64

	camera       atomic.Uint64
	vidConv      atomic.Uint64
	enc          atomic.Uint64
	rtpPay       atomic.Uint64
	udpStream    atomic.Uint64
	rtpDepay     atomic.Uint64
	dec          atomic.Uint64
	queue        atomic.Uint64
	presentation atomic.Uint64
	totalLatency atomic.Uint64

	rtpPayTimestamp   atomic.Uint64
	udpSrcTimestamp   atomic.Uint64
	rtpDepayTimestamp atomic.Uint64
	decTimestamp      atomic.Uint64
	queueTimestamp    atomic.Uint64
	frameReady        atomic.Uint64

	frameID         atomic.Uint64
	packetsPerFrame atomic.Uint32

	historyMu sync.Mutex
	history   []Snapshot
}

// atomicFloat64 stores a float64 behind a uint64 atomic.
type atomicFloat64 struct{ bits atomic.Uint64 }

func (a *atomicFloat64) Load() float64   { return float64FromBits(a.bits.Load()) }
func (a *atomicFloat64) Store(v float64) { a.bits.Store(float64Bits(v)) }

// Snapshot copies the current per-frame values.
func (s *StageLatencies) Snapshot() Snapshot {
	return Snapshot{
		PrevTimestamp:     s.prevTimestamp.Load(),
		CurrTimestamp:     s.currTimestamp.Load(),
		FPS:               s.fps.Load(),
		Camera:            s.camera.Load(),
		VidConv:           s.vidConv.Load(),
		Enc:               s.enc.Load(),
		RTPPay:            s.rtpPay.Load(),
		UDPStream:         s.udpStream.Load(),
		RTPDepay:          s.rtpDepay.Load(),
		Dec:               s.dec.Load(),
		Queue:             s.queue.Load(),
		Presentation:      s.presentation.Load(),
		TotalLatency:      s.totalLatency.Load(),
		RTPPayTimestamp:   s.rtpPayTimestamp.Load(),
		UDPSrcTimestamp:   s.udpSrcTimestamp.Load(),
		RTPDepayTimestamp: s.rtpDepayTimestamp.Load(),
		DecTimestamp:      s.decTimestamp.Load(),
		QueueTimestamp:    s.queueTimestamp.Load(),
		FrameReady:        s.frameReady.Load(),
		FrameID:           s.frameID.Load(),
		PacketsPerFrame:   s.packetsPerFrame.Load(),
	}
}

// UpdateHistory appends the current snapshot to the rolling history,
// evicting the oldest entry beyond HistorySize. Called once per frame
// after all stage fields are recorded.
func (s *StageLatencies) UpdateHistory() {
	snap := s.Snapshot()
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, snap)
	if len(s.history) > HistorySize {
		s.history = s.history[1:]
	}
}

// HistoryLen returns the number of snapshots currently retained.
func (s *StageLatencies) HistoryLen() int {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return len(s.history)
}

// AveragedSnapshot averages every duration field over the history and
// takes the most recent value for frame metadata and absolute
// timestamps. With an empty history it returns the live snapshot.
func (s *StageLatencies) AveragedSnapshot() Snapshot {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if len(s.history) == 0 {
		return s.Snapshot()
	}

	var avg Snapshot
	for _, snap := range s.history {
		avg.PrevTimestamp += snap.PrevTimestamp
		avg.CurrTimestamp += snap.CurrTimestamp
		avg.FPS += snap.FPS
		avg.Camera += snap.Camera
		avg.VidConv += snap.VidConv
		avg.Enc += snap.Enc
		avg.RTPPay += snap.RTPPay
		avg.UDPStream += snap.UDPStream
		avg.RTPDepay += snap.RTPDepay
		avg.Dec += snap.Dec
		avg.Queue += snap.Queue
		avg.Presentation += snap.Presentation
		avg.TotalLatency += snap.TotalLatency
	}

	count := uint64(len(s.history))
	avg.PrevTimestamp /= float64(count)
	avg.CurrTimestamp /= float64(count)
	avg.FPS /= float64(count)
	avg.Camera /= count
	avg.VidConv /= count
	avg.Enc /= count
	avg.RTPPay /= count
	avg.UDPStream /= count
	avg.RTPDepay /= count
	avg.Dec /= count
	avg.Queue /= count
	avg.Presentation /= count
	avg.TotalLatency /= count

	latest := s.history[len(s.history)-1]
	avg.FrameID = latest.FrameID
	avg.PacketsPerFrame = latest.PacketsPerFrame
	avg.RTPPayTimestamp = latest.RTPPayTimestamp
	avg.UDPSrcTimestamp = latest.UDPSrcTimestamp
	avg.RTPDepayTimestamp = latest.RTPDepayTimestamp
	avg.DecTimestamp = latest.DecTimestamp
	avg.QueueTimestamp = latest.QueueTimestamp
	avg.FrameReady = latest.FrameReady

	return avg
}

// FramePresented records the renderer-side presentation delta for the
// frame most recently made ready.
func (s *StageLatencies) FramePresented(nowUs uint64) {
	ready := s.frameReady.Load()
	if ready == 0 || nowUs < ready {
		return
	}
	s.presentation.Store(nowUs - ready)
}
