package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/app/system/validators"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("first EnsureAll failed: %v", err)
	}
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := make(map[string]bool)
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{"users", "shared_flats", "join_requests", "events", "notifications"} {
		if !have[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

// Documents written from the domain models must pass their validators.
func TestValidators_AcceptModelDocuments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	fx := testutil.NewFixtures(t, db)
	founder := fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	joiner := fx.CreateUser(ctx, "Jo", "jo@example.com", 24)
	flat := fx.CreateFlat(ctx, founder, "Validated", 3)
	fx.AddResident(ctx, flat, joiner)

	now := time.Now().UTC()
	if _, err := db.Collection("join_requests").InsertOne(ctx, models.NewJoinRequest(joiner.ID, flat.ID, now)); err != nil {
		t.Errorf("insert join request failed: %v", err)
	}

	events := []models.Event{
		{
			ID: primitive.NewObjectID(), Number: 0, SharedFlatID: flat.ID, CreatedAt: now,
			Type:    models.EventExpense,
			Expense: &models.ExpenseFields{Amount: 5000, TotalAmountAtThisTime: 5000},
		},
		{
			ID: primitive.NewObjectID(), Number: 1, SharedFlatID: flat.ID, CreatedAt: now, Last: true,
			Type: models.EventNeed,
			Need: &models.NeedFields{Status: models.NeedPending, Message: "bin bags", ExpireAt: now.Add(time.Hour)},
		},
	}
	for _, e := range events {
		if _, err := db.Collection("events").InsertOne(ctx, e); err != nil {
			t.Errorf("insert %s event failed: %v", e.Type, err)
		}
	}

	n := models.Notification{ID: primitive.NewObjectID(), UserID: joiner.ID, Message: "welcome", Type: models.NotifySuccess, CreatedAt: now}
	if _, err := db.Collection("notifications").InsertOne(ctx, n); err != nil {
		t.Errorf("insert notification failed: %v", err)
	}
}

func TestValidators_RejectInvalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	now := time.Now().UTC()
	tests := []struct {
		name string
		coll string
		doc  bson.M
	}{
		{"user without email", "users", bson.M{
			"profile": bson.M{"name": "x"}, "has_shared_flat": false, "join_request_pending": false,
		}},
		{"flat of size zero", "shared_flats", bson.M{
			"name": "Zero", "name_ci": "zero", "size": 0, "full": false, "count_residents": 1,
			"residents": bson.A{bson.M{"user_id": primitive.NewObjectID(), "role": "admin", "joined_at": now}},
			"location":  bson.M{"street": "s", "postal_code": "p", "city": "c", "country": "FR"},
		}},
		{"flat with unknown role", "shared_flats", bson.M{
			"name": "Roles", "name_ci": "roles", "size": 2, "full": false, "count_residents": 1,
			"residents": bson.A{bson.M{"user_id": primitive.NewObjectID(), "role": "owner", "joined_at": now}},
			"location":  bson.M{"street": "s", "postal_code": "p", "city": "c", "country": "FR"},
		}},
		{"join request with unknown status", "join_requests", bson.M{
			"user_id": primitive.NewObjectID(), "shared_flat_id": primitive.NewObjectID(),
			"requested_at": now, "status": "maybe",
		}},
		{"event with negative number", "events", bson.M{
			"number": int64(-1), "shared_flat_id": primitive.NewObjectID(), "created_at": now,
			"last": true, "type": "plain",
		}},
		{"event with unknown type", "events", bson.M{
			"number": int64(0), "shared_flat_id": primitive.NewObjectID(), "created_at": now,
			"last": true, "type": "party",
		}},
		{"notification with blank message", "notifications", bson.M{
			"user_id": primitive.NewObjectID(), "message": "  ", "type": "info",
			"created_at": now, "readed": false,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Collection(tt.coll).InsertOne(ctx, tt.doc); err == nil {
				t.Errorf("expected %s insert to be rejected", tt.coll)
			}
		})
	}
}
