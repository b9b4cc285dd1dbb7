package server

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/ctu-vras/telestream/internal/config"
	log "github.com/sirupsen/logrus"
)

type command struct {
	Cmd    string          `json:"cmd"`
	Config json.RawMessage `json:"config"`
}

// ControlLoop reads line-delimited JSON commands from r (the process's
// standard input in production) until "stop" or EOF. Malformed lines are
// logged and skipped; they never abort the reader.
func (s *Server) ControlLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd command
		if err := json.Unmarshal(line, &cmd); err != nil {
			log.Errorf("bad control message: %v", err)
			continue
		}

		switch cmd.Cmd {
		case "update":
			cfg, err := config.StreamingConfigFromCommandJSON(cmd.Config)
			if err != nil {
				log.Errorf("bad control message: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Errorf("rejecting config update: %v", err)
				continue
			}
			version := s.cell.Store(cfg)
			log.Infof("config updated (version %d)", version)
			dumpConfig(cfg)

		case "stop":
			s.RequestStop()
			return

		default:
			log.Errorf("unknown control command %q", cmd.Cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("control channel read failed: %v", err)
	}
	s.RequestStop()
}

func dumpConfig(cfg config.StreamingConfig) {
	log.Infof("  address: %s  ports: %d/%d", cfg.IP, cfg.PortLeft, cfg.PortRight)
	log.Infof("  codec: %s  quality: %d  bitrate: %d", cfg.Codec, cfg.EncodingQuality, cfg.Bitrate)
	log.Infof("  resolution: %dx%d  mode: %s  fps: %d",
		cfg.Resolution.Width, cfg.Resolution.Height, cfg.Mode, cfg.FPS)
}
