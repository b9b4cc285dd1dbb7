// telestreamd is the robot-side streaming driver. It supervises the
// encode/transport pipelines, accepts configuration over REST and over a
// line-delimited command channel on standard input, and stamps outgoing
// media with per-stage timing metadata.
package main

import (
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/ctu-vras/telestream/internal/app"
	"github.com/ctu-vras/telestream/internal/server"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := app.Bootstrap("telestreamd")

	sv := server.New(cfg)
	server.NewHTTPServer(sv, cfg.Server.RESTPort).Serve()

	app.OnShutdown(func() {
		sv.RequestStop()
	})

	go sv.ControlLoop(os.Stdin)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("failed to notify readiness to systemd: %v", err)
	}

	sv.Run()
	os.Exit(0)
}
