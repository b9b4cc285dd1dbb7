package media

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// identity passes buffers through untouched. Its value is the probe
// attachment point its name provides.
type identity struct{}

func (identity) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	return []*Buffer{buf}, nil
}

// videoConvert normalizes raw frames; flips are applied in place when
// flip-method is set.
type videoConvert struct{}

func (videoConvert) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	if buf.Caps.MediaType != "video/x-raw" {
		return []*Buffer{buf}, nil
	}
	if el.stringProp("flip-method", "") == "vertical-flip" {
		flipVertical(buf.Data, buf.Caps.Width, buf.Caps.Height)
	}
	buf.Caps.Format = "RGB"
	return []*Buffer{buf}, nil
}

func flipVertical(data []byte, w, h int) {
	stride := w * 3
	if stride*h > len(data) {
		return
	}
	row := make([]byte, stride)
	for top, bottom := 0, h-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := data[top*stride : (top+1)*stride]
		b := data[bottom*stride : (bottom+1)*stride]
		copy(row, a)
		copy(a, b)
		copy(b, row)
	}
}

// queue decouples upstream from downstream on its own goroutine. When
// full it leaks oldest, keeping the path low-latency under backpressure.
type queueImpl struct {
	ch chan *Buffer
}

func newQueue() elementImpl {
	return &queueImpl{ch: make(chan *Buffer, 16)}
}

func (q *queueImpl) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	for {
		select {
		case q.ch <- buf:
			return nil, nil
		default:
			select {
			case dropped := <-q.ch:
				log.Tracef("queue %s leaking frame %d", el.name, dropped.FrameID)
			default:
			}
		}
	}
}

func (q *queueImpl) run(ctx context.Context, el *Element) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-q.ch:
			el.deliver(buf)
		}
	}
}
