package flatlock_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// redisClient connects to REDIS_ADDR or skips the test.
func redisClient(t *testing.T) goredis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis lock tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedis_LockAndRelease(t *testing.T) {
	rdb := redisClient(t)
	l := flatlock.NewRedis(rdb, 5*time.Second, 5*time.Millisecond, zap.NewNop())
	key := flatlock.Key(primitive.NewObjectID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := l.Lock(short, key); !errors.Is(err, flatlock.ErrNotAcquired) {
		t.Errorf("second Lock err = %v, want ErrNotAcquired", err)
	}

	unlock()

	if n, err := rdb.Exists(ctx, key).Result(); err != nil || n != 0 {
		t.Errorf("key still present after unlock (n=%d, err=%v)", n, err)
	}

	unlock2, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	unlock2()
}

func TestRedis_ReleaseKeepsForeignLease(t *testing.T) {
	rdb := redisClient(t)
	short := flatlock.NewRedis(rdb, 50*time.Millisecond, 5*time.Millisecond, zap.NewNop())
	long := flatlock.NewRedis(rdb, 5*time.Second, 5*time.Millisecond, zap.NewNop())
	key := flatlock.Key(primitive.NewObjectID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	unlock, err := short.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// Let the lease expire and have another holder take it.
	time.Sleep(100 * time.Millisecond)
	unlockOther, err := long.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock by second holder failed: %v", err)
	}
	defer unlockOther()

	// A stale release must not delete the second holder's lease.
	unlock()
	if n, err := rdb.Exists(ctx, key).Result(); err != nil || n != 1 {
		t.Errorf("foreign lease removed by stale unlock (n=%d, err=%v)", n, err)
	}
}
