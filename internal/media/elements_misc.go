package media

import (
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// capsFilter stamps stream metadata onto passing buffers. The receive
// side uses it to declare the expected encoding, payload type and frame
// dimensions of the incoming RTP flow.
type capsFilter struct{}

func (capsFilter) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	if enc := el.stringProp("encoding-name", ""); enc != "" {
		buf.Caps.Encoding = enc
	}
	if pt := el.intProp("payload", 0); pt != 0 {
		buf.Caps.PayloadType = uint8(pt)
	}
	if dims := el.stringProp("x-dimensions", ""); dims != "" {
		w, h, found := strings.Cut(dims, ",")
		if found {
			if wi, err := strconv.Atoi(w); err == nil {
				buf.Caps.Width = wi
			}
			if hi, err := strconv.Atoi(h); err == nil {
				buf.Caps.Height = hi
			}
		}
	}
	return []*Buffer{buf}, nil
}

// appSink terminates a pipeline and hands decoded samples to the
// connected "new-sample" callback.
type appSink struct{}

func (appSink) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	el.emitSample(&Sample{Buffer: buf, Caps: buf.Caps})
	return nil, nil
}

// inputSelector forwards exactly one of its sink pads at a time. Pads are
// named sink_0..sink_{n-1} in link order; the active-pad property picks
// which one passes.
type inputSelector struct {
	mu     sync.Mutex
	active string
}

func (s *inputSelector) processFrom(el, from *Element, buf *Buffer) ([]*Buffer, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == "" {
		active = "sink_0"
	}
	if s.padName(el, from) != active {
		return nil, nil
	}
	return []*Buffer{buf}, nil
}

func (s *inputSelector) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	return []*Buffer{buf}, nil
}

func (s *inputSelector) propertyChanged(el *Element, key string, value interface{}) {
	if key != "active-pad" {
		return
	}
	pad, ok := value.(string)
	if !ok {
		log.Warnf("input-selector %s: active-pad must be a pad name", el.name)
		return
	}
	s.mu.Lock()
	s.active = pad
	s.mu.Unlock()
	log.Debugf("input-selector %s: active pad now %s", el.name, pad)
}

func (s *inputSelector) padName(el, from *Element) string {
	for i, up := range el.ups() {
		if up == from {
			return "sink_" + strconv.Itoa(i)
		}
	}
	return ""
}

// PadCount returns the number of connected sink pads of a selector
// element; zero for any other factory.
func (e *Element) PadCount() int {
	if _, ok := e.impl.(*inputSelector); !ok {
		return 0
	}
	return len(e.ups())
}
