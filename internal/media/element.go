package media

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ProbeFunc observes (and may mutate) every buffer an element outputs.
// Probes run on the element's flow goroutine, in media-flow order.
type ProbeFunc func(el *Element, buf *Buffer)

// SampleFunc receives decoded samples from an appsink.
type SampleFunc func(el *Element, sample *Sample)

// Event is an out-of-band message travelling upstream.
type Event interface{ isEvent() }

// ForceKeyUnit asks the nearest upstream encoder to emit a key frame.
type ForceKeyUnit struct{}

func (ForceKeyUnit) isEvent() {}

// elementImpl is the per-factory behavior behind an Element.
type elementImpl interface {
	// process transforms one input buffer into zero or more outputs.
	process(el *Element, buf *Buffer) ([]*Buffer, error)
}

// runner is implemented by elements that own a goroutine while Playing
// (sources, queues, network receivers).
type runner interface {
	run(ctx context.Context, el *Element)
}

// eventHandler is implemented by elements that react to upstream events.
type eventHandler interface {
	handleEvent(el *Element, ev Event) bool
}

// Element is one node of a pipeline graph.
type Element struct {
	name    string
	factory string
	pipe    *Pipeline
	impl    elementImpl

	mu       sync.Mutex
	props    map[string]interface{}
	probes   []ProbeFunc
	onSample SampleFunc

	// linear links; selector inputs use upstreams.
	downstream *Element
	upstreams  []*Element
}

func (e *Element) Name() string    { return e.name }
func (e *Element) Factory() string { return e.factory }

// Set sets an element property. Allowed in any state; elements read
// their properties at use time.
func (e *Element) Set(key string, value interface{}) {
	e.mu.Lock()
	e.props[key] = value
	e.mu.Unlock()
	if ps, ok := e.impl.(propertySink); ok {
		ps.propertyChanged(e, key, value)
	}
}

// propertySink lets an impl react to live property updates (selector
// active-pad, encoder quality/bitrate).
type propertySink interface {
	propertyChanged(el *Element, key string, value interface{})
}

func (e *Element) getProp(key string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[key]
	return v, ok
}

func (e *Element) intProp(key string, def int) int {
	if v, ok := e.getProp(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case uint64:
			return int(n)
		}
	}
	return def
}

func (e *Element) stringProp(key string, def string) string {
	if v, ok := e.getProp(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// AddProbe registers a buffer probe on the element's output.
func (e *Element) AddProbe(probe ProbeFunc) {
	e.mu.Lock()
	e.probes = append(e.probes, probe)
	e.mu.Unlock()
}

// Connect attaches a named signal callback. Identity elements emit
// "handoff" per buffer; appsink emits "new-sample".
func (e *Element) Connect(signal string, callback interface{}) error {
	switch signal {
	case "handoff":
		cb, ok := callback.(ProbeFunc)
		if !ok {
			return fmt.Errorf("handoff callback must be a ProbeFunc")
		}
		e.AddProbe(cb)
		return nil
	case "new-sample":
		cb, ok := callback.(SampleFunc)
		if !ok {
			return fmt.Errorf("new-sample callback must be a SampleFunc")
		}
		e.mu.Lock()
		e.onSample = cb
		e.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("element %s has no signal %q", e.name, signal)
	}
}

// SendUpstreamEvent walks the graph towards the sources until an element
// handles the event.
func (e *Element) SendUpstreamEvent(ev Event) bool {
	if h, ok := e.impl.(eventHandler); ok && h.handleEvent(e, ev) {
		return true
	}
	for _, up := range e.ups() {
		if up.SendUpstreamEvent(ev) {
			return true
		}
	}
	return false
}

func (e *Element) ups() []*Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Element(nil), e.upstreams...)
}

// padAware impls need to know which upstream a buffer arrived from
// (the input-selector keys its pads off the link order).
type padAware interface {
	processFrom(el, from *Element, buf *Buffer) ([]*Buffer, error)
}

// push runs the element on one buffer and delivers outputs downstream.
func (e *Element) push(from *Element, buf *Buffer) {
	if e.pipe.stopping() {
		return
	}
	var outs []*Buffer
	var err error
	if pa, ok := e.impl.(padAware); ok {
		outs, err = pa.processFrom(e, from, buf)
	} else {
		outs, err = e.impl.process(e, buf)
	}
	if err != nil {
		e.pipe.postError(e, err)
		return
	}
	for _, out := range outs {
		e.deliver(out)
	}
}

func (e *Element) deliver(out *Buffer) {
	e.mu.Lock()
	probes := append([]ProbeFunc(nil), e.probes...)
	next := e.downstream
	e.mu.Unlock()

	for _, probe := range probes {
		probe(e, out)
	}
	if next != nil {
		next.push(e, out)
	}
}

func (e *Element) emitSample(s *Sample) {
	e.mu.Lock()
	cb := e.onSample
	e.mu.Unlock()
	if cb != nil {
		cb(e, s)
	} else {
		log.Tracef("appsink %s dropping sample, no consumer connected", e.name)
	}
}

func link(up, down *Element) {
	up.mu.Lock()
	up.downstream = down
	up.mu.Unlock()
	down.mu.Lock()
	down.upstreams = append(down.upstreams, up)
	down.mu.Unlock()
}
