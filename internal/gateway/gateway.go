// Package gateway consumes the robot-side telemetry forwarder: a stream
// of self-describing messages over a datagram socket. Schemas are
// learned on the fly; data messages parse against them.
package gateway

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ctu-vras/telestream/internal/appstats"
	log "github.com/sirupsen/logrus"
)

const maxDatagram = 65535

// MessageHandler receives every successfully parsed data message.
type MessageHandler func(msg *ParsedMessage)

// Consumer binds the telemetry port and runs a single listener
// goroutine until closed. A bind failure leaves the consumer inactive;
// the rest of the process keeps running.
type Consumer struct {
	registry *SchemaRegistry
	handler  MessageHandler

	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup

	warnedCompressed atomic.Bool
}

func NewConsumer(port int, handler MessageHandler) (*Consumer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("telemetry bind to port %d failed: %w", port, err)
	}
	c := &Consumer{
		registry: NewSchemaRegistry(),
		handler:  handler,
		conn:     conn,
	}
	c.running.Store(true)
	log.Infof("telemetry gateway listening on port %d", port)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.listen()
	}()
	return c, nil
}

// Registry exposes the learned schemas.
func (c *Consumer) Registry() *SchemaRegistry { return c.registry }

// Close unblocks the listener by shutting the socket and joins it.
func (c *Consumer) Close() {
	c.running.Store(false)
	c.conn.Close()
	c.wg.Wait()
}

func (c *Consumer) listen() {
	buf := make([]byte, maxDatagram)
	for c.running.Load() {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if !c.running.Load() {
				return
			}
			continue
		}
		c.handleDatagram(buf[:n])
	}
}

func (c *Consumer) handleDatagram(datagram []byte) {
	timestamp, compressed, topic, msgType, payload, err := ParseFrame(datagram)
	if err != nil {
		log.Errorf("failed to parse telemetry message header: %v", err)
		return
	}

	if compressed != 0 {
		if c.warnedCompressed.CompareAndSwap(false, true) {
			log.Warn("dropping compressed telemetry messages; decompression is not supported")
		}
		appstats.TelemetryMessages.WithLabelValues("dropped").Inc()
		return
	}

	log.Tracef("telemetry: %s (%s), timestamp %.3f, %d payload bytes",
		topic, msgType, timestamp, len(payload))

	isSchema, err := c.registry.RegisterIfSchema(msgType, payload)
	if err != nil {
		log.Errorf("failed to parse telemetry payload: %v", err)
		return
	}
	if isSchema {
		appstats.TelemetryMessages.WithLabelValues("schema").Inc()
		return
	}
	if !c.registry.HasSchema(msgType) {
		return
	}

	msg, err := c.registry.BuildParsedMessage(msgType, topic, payload)
	if err != nil {
		log.Errorf("failed to parse telemetry payload: %v", err)
		return
	}
	appstats.TelemetryMessages.WithLabelValues("data").Inc()
	if c.handler != nil {
		c.handler(msg)
	}
}

// ParseFrame splits a telemetry datagram into its parts:
// [f64 LE timestamp][u8 compressed][topic\0][type\0][payload].
func ParseFrame(datagram []byte) (timestamp float64, compressed byte, topic, msgType string, payload []byte, err error) {
	if len(datagram) < 8+1+2 {
		err = fmt.Errorf("datagram too short (%d bytes)", len(datagram))
		return
	}
	timestamp = math.Float64frombits(binary.LittleEndian.Uint64(datagram[:8]))
	compressed = datagram[8]
	rest := datagram[9:]

	topicEnd := bytes.IndexByte(rest, 0)
	if topicEnd < 0 {
		err = fmt.Errorf("missing topic terminator")
		return
	}
	topic = string(rest[:topicEnd])
	rest = rest[topicEnd+1:]

	typeEnd := bytes.IndexByte(rest, 0)
	if typeEnd < 0 {
		err = fmt.Errorf("missing type terminator")
		return
	}
	msgType = string(rest[:typeEnd])
	payload = rest[typeEnd+1:]
	return
}
