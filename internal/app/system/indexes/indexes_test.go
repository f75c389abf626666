package indexes_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/app/system/indexes"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, ctx context.Context, db *mongo.Database, coll string) map[string]bool {
	t.Helper()
	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// EnsureAll should succeed on a clean database
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	// Second call reuses every index, including the partial one.
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesExpectedIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	tests := []struct {
		coll string
		want []string
	}{
		{"users", []string{"uniq_users_email", "idx_users_shared_flat"}},
		{"shared_flats", []string{
			"uniq_shared_flats_nameci",
			"idx_shared_flats_resident",
			"idx_shared_flats_private_full_nameci_id",
		}},
		{"join_requests", []string{
			"uniq_join_requests_pending_user",
			"idx_join_requests_flat_status_requested",
			"idx_join_requests_user_requested",
		}},
		{"events", []string{
			"uniq_events_flat_number",
			"idx_events_flat_last_number",
			"idx_events_flat_type_number",
		}},
		{"notifications", []string{
			"idx_notifications_user_created",
			"idx_notifications_user_readed_created",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.coll, func(t *testing.T) {
			names := indexNames(t, ctx, db, tt.coll)
			for _, name := range tt.want {
				if !names[name] {
					t.Errorf("expected index %q to exist on %s collection", name, tt.coll)
				}
			}
		})
	}
}

func TestEnsureAll_PendingJoinRequestIsUniquePerUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	c := db.Collection("join_requests")
	userID := primitive.NewObjectID()
	doc := func(status string) bson.M {
		return bson.M{
			"_id":            primitive.NewObjectID(),
			"user_id":        userID,
			"shared_flat_id": primitive.NewObjectID(),
			"status":         status,
			"requested_at":   time.Now(),
		}
	}

	if _, err := c.InsertOne(ctx, doc("rejected")); err != nil {
		t.Fatalf("insert rejected: %v", err)
	}
	if _, err := c.InsertOne(ctx, doc("accepted")); err != nil {
		t.Fatalf("insert accepted: %v", err)
	}
	if _, err := c.InsertOne(ctx, doc("pending")); err != nil {
		t.Fatalf("insert first pending: %v", err)
	}
	if _, err := c.InsertOne(ctx, doc("pending")); !mongo.IsDuplicateKeyError(err) {
		t.Errorf("second pending insert: got %v, want duplicate key error", err)
	}
}

func TestEnsureAll_EventNumberIsUniquePerFlat(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	c := db.Collection("events")
	flatA, flatB := primitive.NewObjectID(), primitive.NewObjectID()

	if _, err := c.InsertOne(ctx, bson.M{"shared_flat_id": flatA, "number": 0}); err != nil {
		t.Fatalf("insert flat A #0: %v", err)
	}
	// Same number on another flat is fine: chains are per flat.
	if _, err := c.InsertOne(ctx, bson.M{"shared_flat_id": flatB, "number": 0}); err != nil {
		t.Fatalf("insert flat B #0: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"shared_flat_id": flatA, "number": 0}); !mongo.IsDuplicateKeyError(err) {
		t.Errorf("duplicate number insert: got %v, want duplicate key error", err)
	}
}
