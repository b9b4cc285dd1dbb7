package server

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	sv := New(testConfig())
	h := NewHTTPServer(sv, 0)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stream/start", h.handleStart)
	mux.HandleFunc("/api/v1/stream/stop", h.handleStop)
	mux.HandleFunc("/api/v1/stream/update", h.handleUpdate)
	return sv, mux
}

func restBody(t *testing.T) []byte {
	t.Helper()
	body, err := testStreamingConfig().MarshalRESTJSON()
	require.NoError(t, err)
	return body
}

func TestHTTP_StartAcceptsConfig(t *testing.T) {
	sv, mux := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewReader(restBody(t)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, version := sv.Cell().Load()
	assert.EqualValues(t, 1, version)
}

func TestHTTP_UpdateRequiresPut(t *testing.T) {
	_, mux := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/update", bytes.NewReader(restBody(t)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/stream/update", bytes.NewReader(restBody(t)))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTP_MalformedConfigIsRejected(t *testing.T) {
	sv, mux := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start",
		bytes.NewReader([]byte(`{"codec":"AV1"}`)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, version := sv.Cell().Load()
	assert.Zero(t, version, "a rejected config must not bump the version")
}

func TestHTTP_StopParksWorkersWithoutStoppingProcess(t *testing.T) {
	sv, mux := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewReader(restBody(t)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/stream/stop", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// REST stop returns the config cell to the uninitialized state so
	// supervisors idle; it must not trigger the process-level stop.
	_, version := sv.Cell().Load()
	assert.Zero(t, version)
	assert.False(t, sv.stopRequested())
}

// Stop idempotence holds over a real listening server: the process (and
// with it the control surface) survives the first stop, so the second
// call still gets an HTTP 200 rather than a connection error.
func TestHTTP_StopIsIdempotentOverTheWire(t *testing.T) {
	sv := New(testConfig())
	h := NewHTTPServer(sv, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.serveListener(ln)
	// The listener stays open until the test binary exits: serveListener
	// treats a Serve error from a closed listener as fatal.
	base := fmt.Sprintf("http://%s", ln.Addr())

	resp, err := http.Post(base+"/api/v1/stream/start", "application/json", bytes.NewReader(restBody(t)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(base+"/api/v1/stream/stop", "application/json", nil)
		require.NoError(t, err, "stop call %d must reach a live server", i+1)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "stop call %d", i+1)
	}
	assert.False(t, sv.stopRequested(), "REST stop must not end the process")

	// The control surface is still alive: streaming can start again.
	resp, err = http.Post(base+"/api/v1/stream/start", "application/json", bytes.NewReader(restBody(t)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, version := sv.Cell().Load()
	assert.EqualValues(t, 1, version, "restart after stop seeds a fresh config generation")
}
