package player

import (
	"math"
	"sync"
)

func float64Bits(v float64) uint64     { return math.Float64bits(v) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }

// Eye identifies which stereo stream a frame or stats record belongs to.
type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)

func (e Eye) String() string {
	if e == EyeRight {
		return "right"
	}
	return "left"
}

// DecodedFrame is the handoff from the consumer to the renderer: either
// a texture handle (hardware decode) or an owned CPU buffer of w*h*3
// bytes (software decode). Rendering decisions key on HasTexture, not on
// the texture target, because the target carries a 2D fallback value
// even on the CPU path.
type DecodedFrame struct {
	mu sync.Mutex

	Width  int
	Height int

	HasTexture    bool
	TextureID     uint32
	TextureTarget string

	data []byte

	Stats *StageLatencies
}

// Reset reallocates the CPU buffer for a new resolution and clears the
// texture state. Called on (re)configuration before pipelines start.
func (f *DecodedFrame) Reset(width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Width = width
	f.Height = height
	f.data = make([]byte, width*height*3)
	f.HasTexture = false
	f.TextureID = 0
	f.TextureTarget = "2D"
}

// StoreTexture records a hardware-decoded frame.
func (f *DecodedFrame) StoreTexture(id uint32, target string, width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HasTexture = true
	f.TextureID = id
	f.TextureTarget = target
	f.Width = width
	f.Height = height
}

// StoreData copies a software-decoded frame into the owned buffer.
func (f *DecodedFrame) StoreData(src []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.data, src)
	f.HasTexture = false
}

// Data returns a read-only view of the CPU buffer; valid until the next
// reconfiguration.
func (f *DecodedFrame) Data() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}
