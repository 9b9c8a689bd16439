package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events over Redis pub/sub. User notifications go to
// user_events:{userID}, feed events to auction_events:{auctionID}.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(addr, password string, db int) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &RedisNotifier{client: rdb}, nil
}

type envelope struct {
	Event   string         `json:"event"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (n *RedisNotifier) publish(ctx context.Context, channel, event string, payload map[string]any) error {
	body, err := json.Marshal(envelope{Event: event, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel, body).Err()
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	return n.publish(ctx, UserChannel(userID), event, payload)
}

func (n *RedisNotifier) PublishAuctionEvent(ctx context.Context, auctionID uuid.UUID, event string, payload map[string]any) error {
	return n.publish(ctx, AuctionChannel(auctionID), event, payload)
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
