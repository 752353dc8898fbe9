package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/shaamilshan/hamme/pkg/log"
)

// RedisPubSub implements PubSub on Redis channels. Each Subscribe call gets
// its own Redis subscription so several local listeners can share a channel.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[string][]*redis.PubSub
	mu            sync.Mutex
}

// NewRedisPubSub connects to Redis and returns a PubSub.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient wraps an existing client.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string][]*redis.PubSub),
	}
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe subscribes to a specific channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	ps := r.client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed so no event published right
	// after Subscribe returns is lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	r.mu.Lock()
	r.subscriptions[channel] = append(r.subscriptions[channel], ps)
	r.mu.Unlock()

	eventCh := make(chan *Event, 100)
	go r.processMessages(ctx, channel, ps, eventCh)
	return eventCh, nil
}

// Unsubscribe closes every local subscription to channel.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	subs := r.subscriptions[channel]
	delete(r.subscriptions, channel)
	r.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for _, subs := range r.subscriptions {
		for _, ps := range subs {
			ps.Close()
		}
	}
	r.subscriptions = make(map[string][]*redis.PubSub)
	r.mu.Unlock()

	return r.client.Close()
}

func (r *RedisPubSub) processMessages(ctx context.Context, channel string, ps *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)
	defer r.remove(channel, ps)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l := pkglog.L()
				l.Warn().Err(err).Str("channel", channel).Msg("pubsub: dropping malformed event")
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				// Slow consumer, drop.
			}
		}
	}
}

func (r *RedisPubSub) remove(channel string, ps *redis.PubSub) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subscriptions[channel]
	for i, s := range subs {
		if s == ps {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.subscriptions, channel)
	} else {
		r.subscriptions[channel] = subs
	}
	ps.Close()
}
