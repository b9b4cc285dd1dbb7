package media

import (
	"context"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// udpSink writes each buffer as one datagram. Delivery is best-effort;
// send errors are logged, not fatal.
type udpSink struct {
	mu   sync.Mutex
	conn *net.UDPConn
	warned bool
}

func (s *udpSink) start(el *Element) error {
	host := el.stringProp("host", "")
	port := el.intProp("port", 0)
	if host == "" || port == 0 {
		return fmt.Errorf("udpsink %s: host/port not configured", el.name)
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("udpsink %s: %w", el.name, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("udpsink %s: %w", el.name, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.warned = false
	s.mu.Unlock()
	return nil
}

func (s *udpSink) stop(el *Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *udpSink) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, nil
	}
	if _, err := conn.Write(buf.Data); err != nil {
		s.mu.Lock()
		first := !s.warned
		s.warned = true
		s.mu.Unlock()
		if first {
			log.Warnf("udpsink %s: send failed: %v (receiver may be down)", el.name, err)
		}
	}
	return nil, nil
}

// udpSrc receives datagrams on its own goroutine; closing the socket on
// teardown unblocks the read immediately.
type udpSrc struct {
	mu   sync.Mutex
	conn *net.UDPConn
}

func (s *udpSrc) start(el *Element) error {
	port := el.intProp("port", 0)
	if port == 0 {
		return fmt.Errorf("udpsrc %s: port not configured", el.name)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("udpsrc %s: bind :%d: %w", el.name, port, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *udpSrc) stop(el *Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *udpSrc) process(el *Element, buf *Buffer) ([]*Buffer, error) {
	return nil, fmt.Errorf("udpsrc has no sink pad")
}

func (s *udpSrc) run(ctx context.Context, el *Element) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || el.pipe.stopping() {
				return
			}
			el.pipe.postError(el, fmt.Errorf("udpsrc read: %w", err))
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		el.deliver(&Buffer{
			Data: data,
			Caps: Caps{MediaType: "application/x-rtp"},
		})
	}
}
