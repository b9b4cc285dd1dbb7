package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"
)

// jpegEnc encodes raw RGB frames with image/jpeg. The quality property is
// read per frame so supervisors can hot-swap it on a running pipeline.
type jpegEnc struct{}

func (jpegEnc) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	w, h := buf.Caps.Width, buf.Caps.Height
	if len(buf.Data) < w*h*3 {
		return nil, fmt.Errorf("short frame: %d bytes for %dx%d", len(buf.Data), w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * 3
			dst := y*img.Stride + x*4
			img.Pix[dst] = buf.Data[src]
			img.Pix[dst+1] = buf.Data[src+1]
			img.Pix[dst+2] = buf.Data[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	var out bytes.Buffer
	quality := el.intProp("quality", 85)
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	enc := &Buffer{
		Data:     out.Bytes(),
		FrameID:  buf.FrameID,
		KeyFrame: true,
		Caps:     buf.Caps,
	}
	enc.Caps.MediaType = "image/jpeg"
	enc.Caps.Encoding = "JPEG"
	return []*Buffer{enc}, nil
}

// jpegDec decodes JPEG frames back to RGB on the CPU (the software path).
type jpegDec struct{}

func (jpegDec) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	img, err := jpeg.Decode(bytes.NewReader(buf.Data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]byte, w*h*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data[i] = byte(r >> 8)
			data[i+1] = byte(g >> 8)
			data[i+2] = byte(b >> 8)
			i += 3
		}
	}
	out := &Buffer{
		Data:    data,
		FrameID: buf.FrameID,
		Caps: Caps{
			MediaType: "video/x-raw",
			Format:    "RGB",
			Width:     w,
			Height:    h,
			FPS:       buf.Caps.FPS,
			Memory:    "system",
		},
	}
	return []*Buffer{out}, nil
}

// codecEnc carries encoded-domain semantics for H.264/H.265 without the
// codecs themselves (they live behind the platform element on the target
// device): GOP key-frame cadence, force-key-unit handling and a live
// bitrate property.
type codecEnc struct {
	encoding   string
	frameCount uint64
	forceKey   atomic.Bool
}

const encGopLength = 30

func (c *codecEnc) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	c.frameCount++
	key := c.frameCount%encGopLength == 1
	if c.forceKey.CompareAndSwap(true, false) {
		key = true
	}
	out := &Buffer{
		Data:     buf.Data,
		FrameID:  buf.FrameID,
		KeyFrame: key,
		Caps:     buf.Caps,
	}
	out.Caps.MediaType = "video/x-" + c.encoding
	out.Caps.Encoding = map[string]string{"h264": "H264", "h265": "H265"}[c.encoding]
	return []*Buffer{out}, nil
}

func (c *codecEnc) handleEvent(el *Element, ev Event) bool {
	if _, ok := ev.(ForceKeyUnit); ok {
		c.forceKey.Store(true)
		return true
	}
	return false
}

// codecDec is the hardware-decode stand-in: output buffers are
// texture-backed, no CPU copy.
type codecDec struct {
	encoding  string
	textureID uint32
}

func (c *codecDec) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	c.textureID++
	out := &Buffer{
		Data:      buf.Data,
		FrameID:   buf.FrameID,
		KeyFrame:  buf.KeyFrame,
		TextureID: c.textureID,
		Caps:      buf.Caps,
	}
	out.Caps.MediaType = "video/x-raw"
	out.Caps.Memory = "texture"
	out.Caps.TextureTarget = "external-oes"
	return []*Buffer{out}, nil
}
