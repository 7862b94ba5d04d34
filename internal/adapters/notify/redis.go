package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisChannel = "somurie:notifications"
	redisPingTimeout    = 5 * time.Second
)

// Publisher is the part of a redis client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Redis publishes notifications as JSON on a pub/sub channel.
type Redis struct {
	pub     Publisher
	channel string
	closer  func() error
}

// NewRedis publishes through pub on channel.
func NewRedis(pub Publisher, channel string) *Redis {
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &Redis{pub: pub, channel: channel, closer: func() error { return nil }}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr, channel string) (*Redis, error) {
	if addr == "" {
		return nil, ErrNoAddress
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: redisPingTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := NewRedis(rdb, channel)
	r.closer = rdb.Close
	return r, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Send(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Channel returns the pub/sub channel notifications go to.
func (r *Redis) Channel() string { return r.channel }

// Close releases the connection opened by DialRedis.
func (r *Redis) Close() error { return r.closer() }
