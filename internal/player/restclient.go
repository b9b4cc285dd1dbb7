package player

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/status"
	log "github.com/sirupsen/logrus"
)

// RESTClient drives the server's stream control endpoints. Any non-200
// outcome is an error for the caller, with the status and body preserved
// for diagnostics.
type RESTClient struct {
	base   string
	client *http.Client

	mu     sync.Mutex
	config config.StreamingConfig
	state  status.ConnectionStatus
}

func NewRESTClient(serverIP string, port int, initial config.StreamingConfig) *RESTClient {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &RESTClient{
		base: fmt.Sprintf("http://%s:%d", serverIP, port),
		client: &http.Client{
			Transport: &http.Transport{DialContext: dialer.DialContext},
			Timeout:   10 * time.Second,
		},
		config: initial,
		state:  status.Unknown,
	}
}

// Config returns the locally stored streaming config.
func (c *RESTClient) Config() config.StreamingConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// ConnectionState reports server reachability for the HUD.
func (c *RESTClient) ConnectionState() status.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RESTClient) setState(s status.ConnectionStatus) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// StartStream posts the locally stored config to the start endpoint.
func (c *RESTClient) StartStream() error {
	body, err := c.Config().MarshalRESTJSON()
	if err != nil {
		return err
	}
	if err := c.do(http.MethodPost, "/api/v1/stream/start", body); err != nil {
		log.Errorf("failed to start stream: %v", err)
		return err
	}
	log.Info("stream started successfully")
	return nil
}

// StopStream is idempotent: stopping a stopped server succeeds.
func (c *RESTClient) StopStream() error {
	if err := c.do(http.MethodPost, "/api/v1/stream/stop", nil); err != nil {
		log.Errorf("failed to stop stream: %v", err)
		return err
	}
	log.Info("stream stopped successfully")
	return nil
}

// UpdateStreamingConfig pushes a new config; on success the local
// snapshot is replaced atomically. The request keeps the locally stored
// headset address rather than the one in next, matching the behavior the
// server peers expect.
func (c *RESTClient) UpdateStreamingConfig(next config.StreamingConfig) error {
	c.mu.Lock()
	next.IP = c.config.IP
	c.mu.Unlock()

	body, err := next.MarshalRESTJSON()
	if err != nil {
		return err
	}
	if err := c.do(http.MethodPut, "/api/v1/stream/update", body); err != nil {
		log.Errorf("failed to update streaming config: %v", err)
		return err
	}
	c.mu.Lock()
	c.config = next
	c.mu.Unlock()
	log.Info("streaming config updated successfully")
	return nil
}

func (c *RESTClient) do(method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.setState(status.Connecting)
	resp, err := c.client.Do(req)
	if err != nil {
		c.setState(status.Failed)
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.setState(status.Failed)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, respBody)
	}
	c.setState(status.Connected)
	return nil
}
