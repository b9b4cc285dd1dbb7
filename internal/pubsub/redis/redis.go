package redis

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

// PubSub is a publish-only redis client. Publishing stats must never
// stall the render or probe paths, so connections are pooled and sends
// carry short write deadlines.
type PubSub struct {
	pool *redis.Pool
}

func NewPubSub(network, address, password string) *PubSub {
	return &PubSub{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.Dial(network, address,
					redis.DialConnectTimeout(2*time.Second),
					redis.DialReadTimeout(10*time.Second),
					redis.DialWriteTimeout(2*time.Second),
					redis.DialPassword(password))
			},
		},
	}
}

// Check verifies connectivity; used once at boot when publishing is
// enabled.
func (p *PubSub) Check() error {
	c := p.pool.Get()
	defer c.Close()
	_, err := c.Do("PING")
	return err
}

func (p *PubSub) Publish(channel string, message []byte) error {
	c := p.pool.Get()
	defer c.Close()
	_, err := c.Do("PUBLISH", channel, message)
	return err
}

func (p *PubSub) Close() error {
	return p.pool.Close()
}
