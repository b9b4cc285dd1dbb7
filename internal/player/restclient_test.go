package player

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientForServer(t *testing.T, srv *httptest.Server, initial config.StreamingConfig) *RESTClient {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewRESTClient(u.Hostname(), port, initial)
}

func TestRESTClient_StartStream(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	initial := config.DefaultStreamingConfig()
	initial.IP = "10.0.31.220"
	c := newClientForServer(t, srv, initial)

	require.NoError(t, c.StartStream())
	assert.Equal(t, "/api/v1/stream/start", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)

	parsed, err := config.StreamingConfigFromRESTJSON(gotBody)
	require.NoError(t, err)
	assert.Equal(t, initial, parsed)
	assert.Equal(t, status.Connected, c.ConnectionState())
}

func TestRESTClient_NonOKIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClientForServer(t, srv, config.DefaultStreamingConfig())
	err := c.StartStream()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, status.Failed, c.ConnectionState())
}

func TestRESTClient_ConnectionErrorIsFailure(t *testing.T) {
	c := NewRESTClient("127.0.0.1", 1, config.DefaultStreamingConfig())
	assert.Error(t, c.StopStream())
	assert.Equal(t, status.Failed, c.ConnectionState())
}

func TestRESTClient_StopIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClientForServer(t, srv, config.DefaultStreamingConfig())
	assert.NoError(t, c.StopStream())
	assert.NoError(t, c.StopStream())
}

// Update keeps the locally stored headset address in the request body
// and replaces the local snapshot only on success.
func TestRESTClient_UpdateKeepsLocalHeadsetAddress(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	initial := config.DefaultStreamingConfig()
	initial.IP = "10.0.31.220"
	c := newClientForServer(t, srv, initial)

	next := initial
	next.IP = "203.0.113.7"
	next.EncodingQuality = 42
	require.NoError(t, c.UpdateStreamingConfig(next))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "10.0.31.220", body["ip_address"])

	got := c.Config()
	assert.Equal(t, 42, got.EncodingQuality)
	assert.Equal(t, "10.0.31.220", got.IP)
}

func TestRESTClient_UpdateFailureKeepsLocalConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	initial := config.DefaultStreamingConfig()
	c := newClientForServer(t, srv, initial)

	next := initial
	next.EncodingQuality = 42
	require.Error(t, c.UpdateStreamingConfig(next))
	assert.Equal(t, initial.EncodingQuality, c.Config().EncodingQuality)
}
