package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

const (
	publishTimeout  = 5 * time.Second
	minRelayBackoff = time.Second
	maxRelayBackoff = 30 * time.Second
)

// RedisBridge publishes match events on a per-match channel and feeds every
// event received on those channels, including its own, into the local Hub.
// While the subscription is down, events are delivered to the local Hub
// directly.
type RedisBridge struct {
	rdb    *redis.Client
	hub    *Hub
	prefix string
	logger *logrus.Logger

	relaying atomic.Bool
}

func NewRedisBridge(rdb *redis.Client, hub *Hub, prefix string, logger *logrus.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, hub: hub, prefix: prefix, logger: logger}
}

func (b *RedisBridge) channel(matchID string) string {
	return b.prefix + matchID
}

func (b *RedisBridge) matchIDFromChannel(channel string) string {
	return strings.TrimPrefix(channel, b.prefix)
}

// Relaying reports whether Run currently feeds Redis messages into the hub.
func (b *RedisBridge) Relaying() bool {
	return b.relaying.Load()
}

// Publish sends ev through Redis. If Redis is unreachable, or this instance
// is not relaying, the event is delivered locally so this instance's
// subscribers still see it.
func (b *RedisBridge) Publish(ctx context.Context, ev MatchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Errorf("failed to marshal match event: %v", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(pctx, b.channel(ev.MatchID), data).Err(); err != nil {
		b.logger.WithError(err).WithField("match", ev.MatchID).Warn("redis publish failed, delivering locally")
		b.hub.Publish(ctx, ev)
		return
	}
	if !b.relaying.Load() {
		b.hub.Publish(ctx, ev)
	}
}

// Run relays Redis messages into the hub until ctx is cancelled or the
// subscription breaks.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.relaying.Store(true)
	defer b.relaying.Store(false)
	b.logger.Infof("listening for match events on %s*", b.prefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription channel closed")
			}
			ev, err := b.decode(msg)
			if err != nil {
				b.logger.Warn(err)
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}

// Serve keeps Run going until ctx is cancelled, resubscribing with
// exponential backoff after each failure.
func (b *RedisBridge) Serve(ctx context.Context) {
	backoff := minRelayBackoff
	for {
		start := time.Now()
		err := b.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > maxRelayBackoff {
			backoff = minRelayBackoff
		}
		b.logger.Warnf("redis relay stopped, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRelayBackoff)
	}
}

func (b *RedisBridge) decode(msg *redis.Message) (MatchEvent, error) {
	var ev MatchEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return ev, fmt.Errorf("bad match event on %s: %w", msg.Channel, err)
	}
	if ev.MatchID == "" {
		ev.MatchID = b.matchIDFromChannel(msg.Channel)
	}
	return ev, nil
}
