// Package bus is the pub/sub transport the promotion protocol runs over.
// It is a thin typed façade: channels carry plain ASCII lines, delivery is
// in-order per channel and at-least-once, and duplicate delivery is
// tolerated by the protocol's one-way latches.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Bus publishes and subscribes to named channels carrying line-oriented
// protocol messages.
type Bus interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription delivers messages received on a channel, in publish order,
// until its context is cancelled or Close is called.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// RedisBus implements Bus over Redis PUBLISH/SUBSCRIBE. Redis Pub/Sub
// delivers messages to a subscribed connection in the order they were
// published, which is the ordering guarantee the promotion protocol
// requires; it is used here as pure message transport, not as a managed
// data store.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus dials a Redis instance acting as the pub/sub master named by
// a cluster's bus_endpoint.
func NewRedisBus(addr, password string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: failed to connect to bus endpoint %s: %w", addr, err)
	}

	return &RedisBus{client: client}, nil
}

// Publish writes msg to channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, msg Message) error {
	if err := b.client.Publish(ctx, channel, msg.Encode()).Err(); err != nil {
		return fmt.Errorf("bus: publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on channel. Malformed lines received on
// the wire are silently dropped rather than delivered; nothing is logged.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("bus: subscribe to %s: %w", channel, err)
	}

	out := make(chan Message, subscriptionBuffer)
	sub := &redisSubscription{ps: ps, out: out}
	go sub.pump(ctx)
	return sub, nil
}

// Close releases the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

const (
	pingTimeout        = 5 * time.Second
	subscriptionBuffer = 64
)

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Message
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			msg, err := Parse(raw.Payload)
			if err != nil {
				continue
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }
