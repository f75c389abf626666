// Package notifybus publishes freshly created notifications so that other
// processes (push gateways, SSE streamers) can deliver them live. The
// notifications collection stays the source of truth; the bus is best-effort.
package notifybus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dalemusser/flathub/internal/domain/models"
	goredis "github.com/redis/go-redis/v9"
)

// Publisher announces a persisted notification.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Nop drops every message. Used when no bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.Notification) error { return nil }

// Message is the wire shape published on the channel.
type Message struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at"`
}

// Redis publishes to a Redis pub/sub channel.
type Redis struct {
	rdb     goredis.UniversalClient
	channel string
}

// NewRedis returns a Redis publisher on channel (default "flathub:notifications").
func NewRedis(rdb goredis.UniversalClient, channel string) *Redis {
	if channel == "" {
		channel = "flathub:notifications"
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (b *Redis) Publish(ctx context.Context, n models.Notification) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis notification bus not initialized")
	}
	raw, err := json.Marshal(Message{
		NotificationID: n.ID.Hex(),
		UserID:         n.UserID.Hex(),
		Type:           n.Type,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}
