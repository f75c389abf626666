package joinrequeststore_test

import (
	"errors"
	"testing"
	"time"

	joinrequeststore "github.com/dalemusser/flathub/internal/app/store/joinrequests"
	"github.com/dalemusser/flathub/internal/app/system/indexes"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_PendingUniquePerUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := joinrequeststore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	user := primitive.NewObjectID()
	now := time.Now().UTC()
	first, err := store.Create(ctx, models.NewJoinRequest(user, primitive.NewObjectID(), now))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, models.NewJoinRequest(user, primitive.NewObjectID(), now)); !errors.Is(err, joinrequeststore.ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}

	// Once resolved, the user may ask again.
	if err := first.Resolve(models.JoinRejected, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := store.SetStatus(ctx, first); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, err := store.Create(ctx, models.NewJoinRequest(user, primitive.NewObjectID(), now)); err != nil {
		t.Errorf("Create after resolve failed: %v", err)
	}
}

func TestStore_SetStatus_OnlyFromPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := joinrequeststore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	jr, err := store.Create(ctx, models.NewJoinRequest(primitive.NewObjectID(), primitive.NewObjectID(), now))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	accepted := jr
	_ = accepted.Resolve(models.JoinAccepted, now)
	rejected := jr
	_ = rejected.Resolve(models.JoinRejected, now)

	if err := store.SetStatus(ctx, accepted); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := store.SetStatus(ctx, rejected); !errors.Is(err, joinrequeststore.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	got, err := store.GetByID(ctx, jr.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.JoinAccepted || got.ResolvedAt == nil {
		t.Errorf("stored request: %+v", got)
	}

	if _, err := store.FindPendingByUser(ctx, jr.UserID); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected no pending request, got %v", err)
	}
}

func TestStore_Lists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := joinrequeststore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	flat := primitive.NewObjectID()
	user := primitive.NewObjectID()
	base := time.Now().UTC().Truncate(time.Millisecond)

	old, _ := store.Create(ctx, models.NewJoinRequest(user, flat, base))
	_ = old.Resolve(models.JoinRejected, base)
	if err := store.SetStatus(ctx, old); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	recent, _ := store.Create(ctx, models.NewJoinRequest(user, flat, base.Add(time.Minute)))
	_, _ = store.Create(ctx, models.NewJoinRequest(primitive.NewObjectID(), flat, base.Add(2*time.Minute)))
	_, _ = store.Create(ctx, models.NewJoinRequest(primitive.NewObjectID(), primitive.NewObjectID(), base))

	mine, err := store.ListByUser(ctx, user)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != recent.ID {
		t.Errorf("ListByUser: got %d, want 2 newest first", len(mine))
	}

	all, _ := store.ListByFlat(ctx, flat, "")
	pending, _ := store.ListByFlat(ctx, flat, models.JoinPending)
	if len(all) != 3 || len(pending) != 2 {
		t.Errorf("ListByFlat: all=%d pending=%d, want 3 and 2", len(all), len(pending))
	}

	found, err := store.FindPendingByUser(ctx, user)
	if err != nil || found.ID != recent.ID {
		t.Errorf("FindPendingByUser = %v, %v", found.ID.Hex(), err)
	}
}
