// Package bridge mirrors room events across server instances through
// Redis pub/sub, one channel per room. Each instance tags what it
// publishes with its own id and ignores its echoes on the way back in.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
)

type envelope struct {
	Instance string       `json:"instance"`
	Event    collab.Event `json:"event"`
}

// RedisRelay implements collab.Relay.
type RedisRelay struct {
	rdb      *redis.Client
	instance string
	log      *slog.Logger
}

func NewRedisRelay(ctx context.Context, addr string, log *slog.Logger) (*RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisRelay{
		rdb:      rdb,
		instance: uuid.NewString(),
		log:      log.With("component", "bridge"),
	}, nil
}

func (r *RedisRelay) Close() error { return r.rdb.Close() }

func channel(roomID string) string { return "room:" + roomID }

func (r *RedisRelay) Publish(roomID string, ev collab.Event) error {
	payload, err := json.Marshal(envelope{Instance: r.instance, Event: ev})
	if err != nil {
		return err
	}
	return r.rdb.Publish(context.Background(), channel(roomID), payload).Err()
}

// Subscribe relays events published for roomID by other instances into
// deliver. Cancelling closes the subscription and ends the goroutine.
func (r *RedisRelay) Subscribe(roomID string, deliver func(collab.Event)) (func(), error) {
	pubsub := r.rdb.Subscribe(context.Background(), channel(roomID))
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", roomID, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("dropping malformed relayed event", "room", roomID, "err", err)
				continue
			}
			if env.Instance == r.instance {
				continue
			}
			deliver(env.Event)
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			r.log.Warn("relay unsubscribe failed", "room", roomID, "err", err)
		}
	}, nil
}
