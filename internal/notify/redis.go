package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultStream = "stream:watch_events"

// RedisClient is the subset of the go-redis client the notifier needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier publishes events to a Redis stream so downstream
// consumers can react without coupling to this process.
type RedisNotifier struct {
	client RedisClient
	stream string
}

func NewRedisNotifier(client RedisClient, stream string) *RedisNotifier {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisNotifier{client: client, stream: stream}
}

func (r *RedisNotifier) Name() string { return "redis" }

func (r *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"event_type": event.Kind,
			"asin":       string(event.ASIN),
			"payload":    string(payloadJSON),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
