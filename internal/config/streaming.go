package config

import (
	"encoding/json"
	"fmt"
)

// Codec identifies the video codec carried on the RTP flows. VP8/VP9 parse
// as labels, but StreamingConfig.Validate rejects them, so both control
// surfaces refuse them before any worker builds a pipeline.
type Codec int

const (
	CodecJPEG Codec = iota
	CodecVP8
	CodecVP9
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecJPEG:
		return "JPEG"
	case CodecVP8:
		return "VP8"
	case CodecVP9:
		return "VP9"
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	default:
		return "Unknown"
	}
}

func CodecFromString(s string) (Codec, error) {
	switch s {
	case "JPEG":
		return CodecJPEG, nil
	case "VP8":
		return CodecVP8, nil
	case "VP9":
		return CodecVP9, nil
	case "H264":
		return CodecH264, nil
	case "H265":
		return CodecH265, nil
	default:
		return 0, fmt.Errorf("invalid codec %q", s)
	}
}

// PayloadType returns the RTP payload type for the codec: 26 for JPEG
// (RFC 2435), 96 (dynamic) for H.264/H.265.
func (c Codec) PayloadType() uint8 {
	if c == CodecJPEG {
		return 26
	}
	return 96
}

// VideoMode defines how many source pipelines feed the encoder(s).
type VideoMode int

const (
	ModeStereo VideoMode = iota
	ModeMono
	ModePanoramic
)

func (m VideoMode) String() string {
	switch m {
	case ModeStereo:
		return "stereo"
	case ModeMono:
		return "mono"
	case ModePanoramic:
		return "panoramic"
	default:
		return "unknown"
	}
}

func VideoModeFromString(s string) (VideoMode, error) {
	switch s {
	case "stereo":
		return ModeStereo, nil
	case "mono":
		return ModeMono, nil
	case "panoramic":
		return ModePanoramic, nil
	default:
		return 0, fmt.Errorf("invalid video mode %q", s)
	}
}

// Resolution is one entry of the fixed preset table.
type Resolution struct {
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Label  string `json:"-" yaml:"-"`
}

func (r Resolution) AspectRatio() float64 {
	return float64(r.Width) / float64(r.Height)
}

// Resolutions is the ordered preset table, nHD through UHD. Streaming
// configs must use one of these.
var Resolutions = []Resolution{
	{640, 360, "nHD"},
	{960, 540, "qHD"},
	{1024, 576, "WSVGA"},
	{1280, 720, "HD"},
	{1600, 900, "HD+"},
	{1920, 1080, "FHD"},
	{2048, 1152, "QWXGA"},
	{2560, 1440, "QHD"},
	{3200, 1800, "WQXGA+"},
	{3840, 2160, "UHD"},
}

func ResolutionFromLabel(label string) (Resolution, error) {
	for _, r := range Resolutions {
		if r.Label == label {
			return r, nil
		}
	}
	return Resolution{}, fmt.Errorf("invalid resolution label %q", label)
}

func ResolutionFromSize(width, height int) (Resolution, error) {
	for _, r := range Resolutions {
		if r.Width == width && r.Height == height {
			return r, nil
		}
	}
	return Resolution{}, fmt.Errorf("resolution %dx%d is not a preset", width, height)
}

// StreamingConfig is the authoritative description of the media transport.
// It is constructed from defaults and mutated only through the control
// exchange; every accepted mutation bumps the config version.
type StreamingConfig struct {
	IP              string
	PortLeft        int
	PortRight       int
	Codec           Codec
	EncodingQuality int
	Bitrate         int
	Resolution      Resolution
	Mode            VideoMode
	FPS             int
}

// DefaultStreamingConfig mirrors the driver defaults: stereo JPEG FHD at
// 60 fps towards 192.168.1.100.
func DefaultStreamingConfig() StreamingConfig {
	return StreamingConfig{
		IP:              "192.168.1.100",
		PortLeft:        8554,
		PortRight:       8556,
		Codec:           CodecJPEG,
		EncodingQuality: 85,
		Bitrate:         400000,
		Resolution:      Resolution{1920, 1080, "FHD"},
		Mode:            ModeStereo,
		FPS:             60,
	}
}

func (c StreamingConfig) Validate() error {
	if c.IP == "" {
		return fmt.Errorf("missing remote address")
	}
	if c.PortLeft == c.PortRight {
		return fmt.Errorf("left and right ports must differ (both %d)", c.PortLeft)
	}
	if _, err := ResolutionFromSize(c.Resolution.Width, c.Resolution.Height); err != nil {
		return err
	}
	if c.FPS < 1 || c.FPS > 120 {
		return fmt.Errorf("frame rate %d outside [1,120]", c.FPS)
	}
	switch c.Codec {
	case CodecJPEG, CodecH264, CodecH265:
	default:
		return fmt.Errorf("codec %s is not implemented", c.Codec)
	}
	return nil
}

// HotSwappable reports whether the change from c to next can be applied to
// a running pipeline by setting encoder properties. Only a quality or
// bitrate difference qualifies; anything structural forces a rebuild.
func (c StreamingConfig) HotSwappable(next StreamingConfig) bool {
	structural := c.Resolution.Width != next.Resolution.Width ||
		c.Resolution.Height != next.Resolution.Height ||
		c.FPS != next.FPS ||
		c.Codec != next.Codec ||
		c.Mode != next.Mode ||
		c.IP != next.IP ||
		c.PortLeft != next.PortLeft ||
		c.PortRight != next.PortRight
	return !structural
}

// restForm is the JSON shape used by the REST endpoints.
type restForm struct {
	Bitrate         int        `json:"bitrate"`
	Codec           string     `json:"codec"`
	EncodingQuality int        `json:"encoding_quality"`
	FPS             int        `json:"fps"`
	IPAddress       string     `json:"ip_address"`
	PortLeft        int        `json:"port_left"`
	PortRight       int        `json:"port_right"`
	Resolution      Resolution `json:"resolution"`
	VideoMode       string     `json:"video_mode"`
}

// commandForm is the JSON shape used on the stdin command channel. Key
// names differ from the REST form for historical reasons.
type commandForm struct {
	IP                   string `json:"ip"`
	PortLeft             int    `json:"portLeft"`
	PortRight            int    `json:"portRight"`
	Codec                string `json:"codec"`
	EncodingQuality      int    `json:"encodingQuality"`
	Bitrate              int    `json:"bitrate"`
	HorizontalResolution int    `json:"horizontalResolution"`
	VerticalResolution   int    `json:"verticalResolution"`
	VideoMode            string `json:"videoMode"`
	FPS                  int    `json:"fps"`
}

// MarshalRESTJSON renders the REST body form of the config.
func (c StreamingConfig) MarshalRESTJSON() ([]byte, error) {
	return json.Marshal(restForm{
		Bitrate:         c.Bitrate,
		Codec:           c.Codec.String(),
		EncodingQuality: c.EncodingQuality,
		FPS:             c.FPS,
		IPAddress:       c.IP,
		PortLeft:        c.PortLeft,
		PortRight:       c.PortRight,
		Resolution:      c.Resolution,
		VideoMode:       c.Mode.String(),
	})
}

// StreamingConfigFromRESTJSON parses a REST body into a StreamingConfig.
// Unknown codec or mode labels and off-preset resolutions fail cleanly.
func StreamingConfigFromRESTJSON(data []byte) (StreamingConfig, error) {
	var f restForm
	if err := json.Unmarshal(data, &f); err != nil {
		return StreamingConfig{}, err
	}
	codec, err := CodecFromString(f.Codec)
	if err != nil {
		return StreamingConfig{}, err
	}
	mode, err := VideoModeFromString(f.VideoMode)
	if err != nil {
		return StreamingConfig{}, err
	}
	res, err := ResolutionFromSize(f.Resolution.Width, f.Resolution.Height)
	if err != nil {
		return StreamingConfig{}, err
	}
	cfg := StreamingConfig{
		IP:              f.IPAddress,
		PortLeft:        f.PortLeft,
		PortRight:       f.PortRight,
		Codec:           codec,
		EncodingQuality: f.EncodingQuality,
		Bitrate:         f.Bitrate,
		Resolution:      res,
		Mode:            mode,
		FPS:             f.FPS,
	}
	return cfg, cfg.Validate()
}

// MarshalCommandJSON renders the command-channel form of the config.
func (c StreamingConfig) MarshalCommandJSON() ([]byte, error) {
	return json.Marshal(commandForm{
		IP:                   c.IP,
		PortLeft:             c.PortLeft,
		PortRight:            c.PortRight,
		Codec:                c.Codec.String(),
		EncodingQuality:      c.EncodingQuality,
		Bitrate:              c.Bitrate,
		HorizontalResolution: c.Resolution.Width,
		VerticalResolution:   c.Resolution.Height,
		VideoMode:            c.Mode.String(),
		FPS:                  c.FPS,
	})
}

// StreamingConfigFromCommandJSON parses the command-channel form.
func StreamingConfigFromCommandJSON(data []byte) (StreamingConfig, error) {
	var f commandForm
	if err := json.Unmarshal(data, &f); err != nil {
		return StreamingConfig{}, err
	}
	codec, err := CodecFromString(f.Codec)
	if err != nil {
		return StreamingConfig{}, err
	}
	mode, err := VideoModeFromString(f.VideoMode)
	if err != nil {
		return StreamingConfig{}, err
	}
	res, err := ResolutionFromSize(f.HorizontalResolution, f.VerticalResolution)
	if err != nil {
		return StreamingConfig{}, err
	}
	return StreamingConfig{
		IP:              f.IP,
		PortLeft:        f.PortLeft,
		PortRight:       f.PortRight,
		Codec:           codec,
		EncodingQuality: f.EncodingQuality,
		Bitrate:         f.Bitrate,
		Resolution:      res,
		Mode:            mode,
		FPS:             f.FPS,
	}, nil
}
