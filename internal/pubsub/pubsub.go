// Package pubsub publishes latency and telemetry events to an external
// message bus for offline analysis. The transport surface is pluggable;
// redis is the only adapter in this build.
package pubsub

import (
	"fmt"

	"github.com/ctu-vras/telestream/internal/config"
	"github.com/ctu-vras/telestream/internal/pubsub/redis"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
)

type PubSub interface {
	Publish(channel string, message []byte) error
	Check() error
	Close() error
}

func NewPubSub(cfg config.PubSub) PubSub {
	var err error
	var ps PubSub
	switch cfg.Adapter {
	case "redis":
		c := config.Redis{}
		if err = mapstructure.Decode(cfg.Adapters[cfg.Adapter], &c); err != nil {
			break
		}
		ps = redis.NewPubSub(c.Network, c.Address, c.Password)
	default:
		err = fmt.Errorf("unknown pubsub adapter '%s'", cfg.Adapter)
	}
	if err != nil {
		log.Fatalf("failed to decode %s pubsub configuration: %s", cfg.Adapter, err)
		return nil
	}
	return ps
}
