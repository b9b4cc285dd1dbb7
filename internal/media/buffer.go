// Package media is a thin element/bus/bin runtime for building media
// pipelines from textual descriptions. Elements are implemented natively;
// the graph model (named elements, buffer probes, bus messages, selector
// pads, synchronous state changes) follows the conventional streaming
// engine shape so pipeline supervisors can be written against it directly.
package media

// Caps describes the format of the data flowing on a link.
type Caps struct {
	// MediaType is e.g. "video/x-raw", "video/x-h264", "application/x-rtp".
	MediaType string
	// Format is the raw pixel format (e.g. "RGB", "NV12"); raw video only.
	Format string
	Width  int
	Height int
	FPS    int

	// Encoding is the RTP encoding-name for encoded/packetized payloads
	// ("JPEG", "H264", "H265").
	Encoding    string
	PayloadType uint8

	// Memory distinguishes CPU-backed buffers ("system") from
	// texture-backed ones ("texture") on the decode side.
	Memory string
	// TextureTarget is "2D" or "external-oes" for texture-backed buffers.
	TextureTarget string
}

// Buffer is one unit of data flowing through a pipeline: a raw frame, an
// encoded frame or a serialized RTP packet. Probes receive it writable.
type Buffer struct {
	Data []byte
	Caps Caps

	// FrameID is a per-flow monotonic frame counter, set by sources.
	FrameID uint64
	// KeyFrame marks an encoded frame that can be decoded standalone.
	KeyFrame bool
	// Marker marks the last RTP packet of a frame.
	Marker bool
	// TextureID carries the decoded texture handle on the hardware path.
	TextureID uint32
}

// Sample is the appsink handoff unit.
type Sample struct {
	Buffer *Buffer
	Caps   Caps
}
