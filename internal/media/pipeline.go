package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the pipeline lifecycle state.
type State int

const (
	StateNull State = iota
	StateReady
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MessageType classifies bus messages.
type MessageType int

const (
	MessageError MessageType = 1 << iota
	MessageEOS
	MessageStateChanged
	MessageWarning
)

// Message is one bus entry.
type Message struct {
	Type   MessageType
	Source string
	Err    error
	// Old/New are set on state-changed messages.
	Old, New State
}

// Bus carries asynchronous pipeline messages to the supervising loop.
type Bus struct {
	ch chan Message
}

func newBus() *Bus {
	return &Bus{ch: make(chan Message, 64)}
}

func (b *Bus) post(m Message) {
	select {
	case b.ch <- m:
	default:
		log.Warnf("bus overflow, dropping %v message from %s", m.Type, m.Source)
	}
}

// TimedPop waits up to timeout for a message matching mask. Returns nil
// on timeout.
func (b *Bus) TimedPop(timeout time.Duration, mask MessageType) *Message {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case m := <-b.ch:
			if m.Type&mask != 0 {
				return &m
			}
		case <-deadline.C:
			return nil
		}
	}
}

// Pipeline is a parsed element graph with a bus and a state machine.
type Pipeline struct {
	mu       sync.Mutex
	name     string
	elements map[string]*Element
	ordered  []*Element
	state    State
	bus      *Bus

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool
	eosSent atomic.Bool
}

func newPipeline() *Pipeline {
	return &Pipeline{
		elements: make(map[string]*Element),
		bus:      newBus(),
	}
}

func (p *Pipeline) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

func (p *Pipeline) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Pipeline) Bus() *Bus { return p.bus }

// ByName returns the uniquely named element, or an error.
func (p *Pipeline) ByName(name string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[name]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("pipeline %s has no element %q", p.name, name)
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

const stateChangeTimeout = 5 * time.Second

// SetState drives the pipeline to the target state synchronously.
// Transitions complete within stateChangeTimeout or fail.
func (p *Pipeline) SetState(target State) error {
	p.mu.Lock()
	current := p.state
	p.mu.Unlock()
	if current == target {
		return nil
	}

	switch target {
	case StatePlaying:
		if err := p.play(); err != nil {
			return err
		}
	case StateNull, StateReady:
		if current == StatePlaying {
			if err := p.stop(); err != nil {
				return err
			}
		}
	}

	p.mu.Lock()
	p.state = target
	p.mu.Unlock()
	p.bus.post(Message{Type: MessageStateChanged, Source: p.name, Old: current, New: target})
	log.Debugf("pipeline %s: state %s -> %s", p.name, current, target)
	return nil
}

func (p *Pipeline) play() error {
	p.closing.Store(false)
	p.eosSent.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	ordered := append([]*Element(nil), p.ordered...)
	p.mu.Unlock()

	// Prepare elements that bind resources before data flows. On
	// failure, release whatever already started.
	started := make([]*Element, 0, len(ordered))
	for _, el := range ordered {
		if s, ok := el.impl.(interface{ start(el *Element) error }); ok {
			if err := s.start(el); err != nil {
				cancel()
				for _, prev := range started {
					if c, ok := prev.impl.(interface{ stop(el *Element) }); ok {
						c.stop(prev)
					}
				}
				return fmt.Errorf("element %s failed to start: %w", el.name, err)
			}
			started = append(started, el)
		}
	}
	for _, el := range ordered {
		if r, ok := el.impl.(runner); ok {
			p.wg.Add(1)
			el := el
			go func() {
				defer p.wg.Done()
				r.run(ctx, el)
			}()
		}
	}
	return nil
}

func (p *Pipeline) stop() error {
	p.closing.Store(true)
	p.mu.Lock()
	cancel := p.cancel
	ordered := append([]*Element(nil), p.ordered...)
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Close element resources (sockets) so blocked readers return.
	for _, el := range ordered {
		if c, ok := el.impl.(interface{ stop(el *Element) }); ok {
			c.stop(el)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(stateChangeTimeout):
		return fmt.Errorf("pipeline %s: state change to null timed out", p.name)
	}
}

// SendEOS cancels the pipeline's flow goroutines and posts end-of-stream on
// the bus right away; it does not wait for in-flight buffers to drain.
func (p *Pipeline) SendEOS() {
	if !p.eosSent.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.bus.post(Message{Type: MessageEOS, Source: p.name})
}

func (p *Pipeline) stopping() bool {
	return p.closing.Load()
}

func (p *Pipeline) postError(el *Element, err error) {
	log.Errorf("pipeline %s: element %s: %v", p.name, el.name, err)
	p.bus.post(Message{Type: MessageError, Source: el.name, Err: err})
}

func (p *Pipeline) addElement(el *Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.elements[el.name]; exists {
		return fmt.Errorf("duplicate element name %q", el.name)
	}
	p.elements[el.name] = el
	p.ordered = append(p.ordered, el)
	return nil
}
