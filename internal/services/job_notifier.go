package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adloophq/adloop-backend/internal/logger"
)

// RedisNotifier publishes orchestration events (job started, job finished,
// flow completed) on a redis pub/sub channel for external consumers.
type RedisNotifier struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(log *logger.Logger) (*RedisNotifier, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "campaign-events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisNotifier{
		log:     log.With("service", "RedisNotifier"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, event string, payload any) error {
	msg := map[string]any{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
