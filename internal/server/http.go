package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/config"
	log "github.com/sirupsen/logrus"
)

// HTTPServer is the REST front-end of the control exchange. It translates
// the REST JSON form into the same versioned config cell the stdin
// command channel feeds.
type HTTPServer struct {
	server *Server
	port   int
}

func NewHTTPServer(sv *Server, port int) *HTTPServer {
	return &HTTPServer{server: sv, port: port}
}

// Serve registers the stream control endpoints and listens in the
// background. A bind failure is fatal: the control surface is the only
// way to start streaming.
func (h *HTTPServer) Serve() {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(h.port))
	if err != nil {
		log.Fatal(err)
	}
	h.serveListener(ln)
}

func (h *HTTPServer) serveListener(ln net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stream/start", h.handleStart)
	mux.HandleFunc("/api/v1/stream/stop", h.handleStop)
	mux.HandleFunc("/api/v1/stream/update", h.handleUpdate)

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	log.Printf("starting stream control http server on %s", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()
}

func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.applyConfig(w, r, "start")
}

func (h *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.applyConfig(w, r, "update")
}

// handleStop is idempotent: stopping an already stopped stream succeeds.
// It only parks the pipeline workers; the process (and this control
// surface) stays up so the stream can be started again.
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	appstats.Requests.WithLabelValues("stop").Inc()
	h.server.StopStreaming()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"stopped"}`)
}

func (h *HTTPServer) applyConfig(w http.ResponseWriter, r *http.Request, method string) {
	appstats.Requests.WithLabelValues(method).Inc()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := config.StreamingConfigFromRESTJSON(body)
	if err != nil {
		log.Errorf("rejecting %s request: %v", method, err)
		appstats.InvalidRequests.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	version := h.server.Cell().Store(cfg)
	log.Infof("stream %s accepted (version %d)", method, version)
	dumpConfig(cfg)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%d}`, version)
}
