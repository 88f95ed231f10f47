package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrEventBusDisabled is returned when no Redis client backs the bus.
var ErrEventBusDisabled = errors.New("alert event bus disabled")

// AlertEventRepository publishes and subscribes to alert events over Redis pub/sub.
type AlertEventRepository struct {
	client  *redis.Client
	channel string
}

// NewAlertEventRepository constructs the event bus for one channel.
func NewAlertEventRepository(client *redis.Client, channel string) *AlertEventRepository {
	return &AlertEventRepository{client: client, channel: channel}
}

// Publish sends an encoded event to every subscriber.
func (r *AlertEventRepository) Publish(ctx context.Context, payload []byte) error {
	if r.client == nil {
		return ErrEventBusDisabled
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe streams raw event payloads until ctx is done. The returned channel is closed on exit.
func (r *AlertEventRepository) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if r.client == nil {
		return nil, ErrEventBusDisabled
	}
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
