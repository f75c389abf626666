package notifybus_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/app/system/notifybus"
	"github.com/dalemusser/flathub/internal/domain/models"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNop(t *testing.T) {
	var p notifybus.Publisher = notifybus.Nop{}
	if err := p.Publish(context.Background(), models.Notification{}); err != nil {
		t.Errorf("Nop.Publish returned %v", err)
	}
}

func TestRedis_Uninitialized(t *testing.T) {
	var b *notifybus.Redis
	if err := b.Publish(context.Background(), models.Notification{}); err == nil {
		t.Error("expected error from nil bus")
	}
}

func TestRedis_Publish(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis bus tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}

	channel := "flathub:test:" + primitive.NewObjectID().Hex()
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	n := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		Message:   "Your join request was accepted",
		Type:      models.NotifySuccess,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := notifybus.NewRedis(rdb, channel).Publish(ctx, n); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	var got notifybus.Message
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("bad payload %q: %v", msg.Payload, err)
	}
	if got.NotificationID != n.ID.Hex() || got.UserID != n.UserID.Hex() || got.Type != models.NotifySuccess {
		t.Errorf("unexpected message: %+v", got)
	}
	if got.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Errorf("created_at = %q", got.CreatedAt)
	}
}
