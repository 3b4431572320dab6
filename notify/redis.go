package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the part of *redis.Client the stream notifier uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream appends summaries to a Redis stream.
type RedisStream struct {
	client RedisClient
	stream string
	now    func() time.Time
}

// NewRedisStream publishes to stream through client.
func NewRedisStream(client RedisClient, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream, now: time.Now}
}

func (r *RedisStream) Send(ctx context.Context, message string) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":        uuid.New().String(),
			"type":      EventType,
			"timestamp": strconv.FormatInt(r.now().UnixNano(), 10),
			"message":   message,
		},
	}
	if _, err := r.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", r.stream, err)
	}
	return nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}
