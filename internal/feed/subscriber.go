package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/notify"
)

// Subscriber bridges the Redis auction-event channels into the hub.
type Subscriber struct {
	client *redis.Client
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewSubscriber(addr, password string, db int, hub *Hub, log *zap.SugaredLogger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &Subscriber{client: rdb, hub: hub, log: log}, nil
}

// Run blocks until ctx is done, forwarding every auction event to the hub.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, notify.AuctionChannelPattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			auctionID := auctionIDFromChannel(msg.Channel)
			if auctionID == "" {
				continue
			}
			s.hub.Broadcast(auctionID, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}

func auctionIDFromChannel(channel string) string {
	_, id, found := strings.Cut(channel, ":")
	if !found {
		return ""
	}
	return id
}
