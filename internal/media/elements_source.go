package media

import (
	"context"
	"fmt"
	"time"
)

// camsrc is the synthetic camera source. It produces raw RGB frames at
// the configured rate; the platform camera element of the target device
// is substituted at deployment time without changing the graph shape.
type camSrc struct {
	frameID uint64
}

func (s *camSrc) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	return nil, fmt.Errorf("camsrc has no sink pad")
}

func (s *camSrc) start(el *Element) error {
	w := el.intProp("width", 0)
	h := el.intProp("height", 0)
	fps := el.intProp("fps", 0)
	if w <= 0 || h <= 0 {
		return fmt.Errorf("camsrc %s: missing caps (width=%d height=%d)", el.name, w, h)
	}
	if fps <= 0 || fps > 120 {
		return fmt.Errorf("camsrc %s: frame rate %d outside [1,120]", el.name, fps)
	}
	return nil
}

func (s *camSrc) run(ctx context.Context, el *Element) {
	w := el.intProp("width", 1920)
	h := el.intProp("height", 1080)
	fps := el.intProp("fps", 30)
	sensor := el.intProp("sensor-id", 0)

	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	caps := Caps{
		MediaType: "video/x-raw",
		Format:    el.stringProp("format", "RGB"),
		Width:     w,
		Height:    h,
		FPS:       fps,
		Memory:    "system",
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.frameID++
			data := make([]byte, w*h*3)
			// Cheap moving gradient so consecutive frames differ.
			shade := byte(s.frameID)
			for i := range data {
				data[i] = shade + byte(i%3) + byte(sensor)
			}
			el.deliver(&Buffer{
				Data:    data,
				Caps:    caps,
				FrameID: s.frameID,
			})
		}
	}
}
