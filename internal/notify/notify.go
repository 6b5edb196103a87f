// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier fans lobby events out over a per-lobby pub/sub channel.
// The websocket feed subscribes to the same channel, so every process
// serving a connection sees events no matter which process committed the
// transition. Delivery is best effort.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func channel(lobbyID uuid.UUID) string {
	return "lobby_events:" + lobbyID.String()
}

// Publish serializes the event and publishes it on the lobby's channel.
func (n *RedisNotifier) Publish(ctx context.Context, lobbyID uuid.UUID, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby event: %w", err)
	}
	if err := n.rdb.Publish(ctx, channel(lobbyID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", channel(lobbyID), err)
	}
	return nil
}

// Subscribe opens a subscription to one lobby's event channel. The caller
// owns the returned PubSub and must Close it.
func (n *RedisNotifier) Subscribe(ctx context.Context, lobbyID uuid.UUID) *redis.PubSub {
	return n.rdb.Subscribe(ctx, channel(lobbyID))
}
