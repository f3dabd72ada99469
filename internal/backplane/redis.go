// Package backplane fans relays out across hub instances over Redis pub/sub.
package backplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go-liveclass/internal/websocket"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces per-class pub/sub channels.
const ChannelPrefix = "liveclass:"

var ErrEmptyClass = errors.New("relay has no class")

// Deliverer receives relays that originated on another instance.
type Deliverer interface {
	Deliver(r websocket.Relay) int
}

// envelope is the wire form of a relay on the backplane.
type envelope struct {
	Origin string          `json:"origin"`
	Relay  websocket.Relay `json:"relay"`
}

// Channel returns the pub/sub channel for classID.
func Channel(classID string) string {
	return ChannelPrefix + classID
}

// Connect opens a Redis client from a redis:// URL and checks it answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisBackplane publishes local relays and delivers foreign ones. Each
// instance tags what it publishes with its own id and ignores its echoes.
type RedisBackplane struct {
	rdb      *redis.Client
	instance string
	logger   *slog.Logger
}

func NewRedisBackplane(rdb *redis.Client, logger *slog.Logger) (*RedisBackplane, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	instance, err := nanoid.New(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance id: %w", err)
	}
	return &RedisBackplane{
		rdb:      rdb,
		instance: instance,
		logger:   logger.With("instance", instance),
	}, nil
}

func (b *RedisBackplane) InstanceID() string {
	return b.instance
}

// Publish implements websocket.Publisher.
func (b *RedisBackplane) Publish(ctx context.Context, r websocket.Relay) error {
	data, err := b.encode(r)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Channel(r.ClassID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish relay: %w", err)
	}
	return nil
}

// Run subscribes to every class channel and hands foreign relays to dst
// until ctx is done.
func (b *RedisBackplane) Run(ctx context.Context, dst Deliverer) error {
	pubsub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.logger.Info("backplane subscribed", "pattern", ChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Channel, []byte(msg.Payload), dst)
		}
	}
}

func (b *RedisBackplane) handle(channel string, payload []byte, dst Deliverer) {
	r, own, err := b.decode(payload)
	if err != nil {
		b.logger.Warn("dropping malformed backplane message", "channel", channel, "err", err)
		return
	}
	if own {
		return
	}
	if want := strings.TrimPrefix(channel, ChannelPrefix); want != r.ClassID {
		b.logger.Warn("backplane class mismatch", "channel", channel, "class", r.ClassID)
		return
	}
	n := dst.Deliver(r)
	b.logger.Debug("backplane relay delivered", "class", r.ClassID, "recipients", n)
}

func (b *RedisBackplane) encode(r websocket.Relay) ([]byte, error) {
	if r.ClassID == "" {
		return nil, ErrEmptyClass
	}
	data, err := json.Marshal(envelope{Origin: b.instance, Relay: r})
	if err != nil {
		return nil, fmt.Errorf("failed to encode relay: %w", err)
	}
	return data, nil
}

// decode reports own=true for relays this instance published.
func (b *RedisBackplane) decode(data []byte) (r websocket.Relay, own bool, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return websocket.Relay{}, false, fmt.Errorf("failed to decode relay: %w", err)
	}
	if env.Relay.ClassID == "" {
		return websocket.Relay{}, false, ErrEmptyClass
	}
	return env.Relay, env.Origin == b.instance, nil
}
