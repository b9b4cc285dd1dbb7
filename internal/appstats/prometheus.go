package appstats

import (
	"net/http"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "in_requests",
		Help:      "Number of stream control requests received",
	},
		[]string{
			"method",
		})

	InvalidRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "invalid_requests",
		Help:      "Number of invalid stream control requests",
	})

	PipelineFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "pipeline_failures_total",
		Help:      "Pipeline build/play/streaming failures",
	},
		[]string{
			"pipeline",
		})

	PipelineRebuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "pipeline_rebuilds_total",
		Help:      "Pipeline teardown-and-rebuild cycles",
	},
		[]string{
			"pipeline",
		})

	HotSwaps = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "hot_swaps_total",
		Help:      "Config changes applied in place without a rebuild",
	})

	CameraSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "camera_switches_total",
		Help:      "Panoramic camera switches applied",
	})

	FramesStamped = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "frames_stamped_total",
		Help:      "Frames stamped with the timing header extension",
	})

	FramesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "frames_decoded_total",
		Help:      "Decoded frames delivered to the renderer",
	},
		[]string{
			"eye",
		})

	StageLatency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "telestream",
		Name:      "stage_latency_us",
		Help:      "Averaged per-stage latency in microseconds",
	},
		[]string{
			"eye",
			"stage",
		})

	TelemetryMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "telestream",
		Name:      "telemetry_messages_total",
		Help:      "Telemetry gateway messages by disposition",
	},
		[]string{
			"kind", // schema/data/dropped
		})

	ComponentHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "telestream",
		Name:      "component_health",
		Help:      "Component health (1 healthy, 0 unhealthy)",
	},
		[]string{
			"component", // ntp/pubsub/telemetry
		})
)

func RegisterMetrics() {
	prometheus.MustRegister(
		Requests,
		InvalidRequests,
		PipelineFailures,
		PipelineRebuilds,
		HotSwaps,
		CameraSwitches,
		FramesStamped,
		FramesDecoded,
		StageLatency,
		TelemetryMessages,
		ComponentHealth,
	)
}

func SetComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	ComponentHealth.WithLabelValues(component).Set(v)
}

func ServePromMetrics(cfg config.Prometheus) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("serving prometheus metrics on %s/metrics", cfg.ListenAddress)
		if err := http.ListenAndServe(cfg.ListenAddress, nil); err != nil {
			log.Errorf("prometheus listener failed: %v", err)
		}
	}()
}
