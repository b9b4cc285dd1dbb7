// telestream-player is the headset-side consumer. It synchronizes its
// clock against the camera server, starts the stream over REST, builds
// the receive/decode pipelines and listens for robot telemetry.
package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ctu-vras/telestream/internal/app"
	"github.com/ctu-vras/telestream/internal/appstats"
	"github.com/ctu-vras/telestream/internal/clock"
	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/events"
	"github.com/ctu-vras/telestream/internal/gateway"
	"github.com/ctu-vras/telestream/internal/player"
	"github.com/ctu-vras/telestream/internal/pubsub"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := app.Bootstrap("telestream-player")

	ntp := clock.NewSynchronizer(cfg.NTP.Server, cfg.NTP.FallbackServer)
	ntp.Start()

	var ps pubsub.PubSub
	if cfg.PubSub.Enable {
		ps = pubsub.NewPubSub(cfg.PubSub)
		if err := ps.Check(); err != nil {
			log.Warnf("stats bus unreachable, publishing disabled: %v", err)
			appstats.SetComponentHealth("pubsub", false)
			ps = nil
		} else {
			appstats.SetComponentHealth("pubsub", true)
		}
	}

	// Telemetry is optional: a failed bind leaves the subsystem inactive
	// while streaming continues.
	telemetry, err := gateway.NewConsumer(cfg.Telemetry.Port, func(msg *gateway.ParsedMessage) {
		handleTelemetry(msg, ps, cfg.PubSub.Channel)
	})
	if err != nil {
		log.Errorf("telemetry unavailable: %v", err)
		appstats.SetComponentHealth("telemetry", false)
	} else {
		appstats.SetComponentHealth("telemetry", true)
	}

	stream := config.DefaultStreamingConfig()
	stream.IP = cfg.Player.HeadsetIP
	rest := player.NewRESTClient(cfg.Player.ServerIP, cfg.Player.RESTPort, stream)

	pl := player.New(cfg, ntp)

	if err := rest.StartStream(); err != nil {
		// The server may come up later; pipelines wait for media anyway.
		log.Warnf("stream start failed, pipelines will wait for media: %v", err)
	}
	if err := pl.Configure(rest.Config()); err != nil {
		log.Fatalf("failed to build receive pipelines: %v", err)
	}

	stop := make(chan struct{})
	go pl.PublishStats(time.Second, stop, func(eye player.Eye, snap player.Snapshot) {
		publishSnapshot(ps, cfg, eye, snap)
	})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				appstats.SetComponentHealth("ntp", ntp.IsHealthy())
			}
		}
	}()

	app.OnShutdown(func() {
		close(stop)
		if err := rest.StopStream(); err != nil {
			log.Warnf("stop stream request failed: %v", err)
		}
		writeSessionStats(cfg, pl)
		pl.Close()
		if telemetry != nil {
			telemetry.Close()
		}
		ntp.Close()
		if ps != nil {
			ps.Close()
		}
		os.Exit(0)
	})

	select {}
}

// writeSessionStats dumps the final averaged snapshots to disk when a
// stats directory is configured.
func writeSessionStats(cfg *config.Config, pl *player.Player) {
	if cfg.Player.StatsDirectory == "" {
		return
	}
	w := appstats.NewStatsFileWriter(cfg.Player.StatsDirectory, 0600)
	out := &appstats.StatsFileOutput{
		Snapshots: map[string]interface{}{
			"left":  pl.Stats(player.EyeLeft).AveragedSnapshot(),
			"right": pl.Stats(player.EyeRight).AveragedSnapshot(),
		},
		StatsTimestamp: time.Now().Unix(),
	}
	if err := w.WriteStats("session", out); err != nil {
		log.Warnf("failed to write session stats: %v", err)
	}
}

func publishSnapshot(ps pubsub.PubSub, cfg *config.Config, eye player.Eye, snap player.Snapshot) {
	if ps == nil {
		return
	}
	event, err := events.NewLatencySnapshot(cfg.App.InstanceId, eye.String(), snap)
	if err != nil {
		return
	}
	j, _ := json.Marshal(event)
	if err := ps.Publish(cfg.PubSub.Channel, j); err != nil {
		log.Debugf("failed to publish latency snapshot: %v", err)
	}
}

func handleTelemetry(msg *gateway.ParsedMessage, ps pubsub.PubSub, channel string) {
	switch msg.Topic() {
	case "/loki_1/chassis/battery_voltage":
		if v, err := gateway.Get[float32](msg, "data"); err == nil {
			log.Infof("telemetry: %s, data: %f", msg.Topic(), v)
		}
	case "/loki_1/chassis/clock":
		if v, err := gateway.Get[int64](msg, "clock.sec"); err == nil {
			log.Infof("telemetry: %s, clock sec: %d", msg.Topic(), v)
		}
	}

	if ps == nil {
		return
	}
	j, _ := json.Marshal(events.TelemetrySample{
		Id:    events.TelemetrySampleKey,
		Topic: msg.Topic(),
		Type:  msg.Type(),
	})
	if err := ps.Publish(channel, j); err != nil {
		log.Debugf("failed to publish telemetry sample: %v", err)
	}
}
