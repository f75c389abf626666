package notificationstore_test

import (
	"errors"
	"testing"
	"time"

	notificationstore "github.com/dalemusser/flathub/internal/app/store/notifications"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func note(user primitive.ObjectID, typ string, at time.Time) models.Notification {
	return models.Notification{UserID: user, Message: "m", Type: typ, CreatedAt: at}
}

func TestStore_MarkRead(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	n, err := store.Create(ctx, note(owner, models.NotifyInfo, time.Now().UTC()))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n.ID.IsZero() {
		t.Fatal("expected ID to be assigned")
	}

	ok, err := store.MarkRead(ctx, n.ID, primitive.NewObjectID())
	if err != nil || ok {
		t.Errorf("MarkRead by stranger = %v, %v; want false", ok, err)
	}
	ok, err = store.MarkRead(ctx, n.ID, owner)
	if err != nil || !ok {
		t.Errorf("MarkRead by owner = %v, %v; want true", ok, err)
	}
	ok, _ = store.MarkRead(ctx, n.ID, owner)
	if ok {
		t.Error("second MarkRead should report false")
	}

	got, err := store.GetByID(ctx, n.ID)
	if err != nil || !got.Readed {
		t.Errorf("GetByID = %+v, %v", got, err)
	}
	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := primitive.NewObjectID()
	base := time.Now().UTC().Truncate(time.Millisecond)
	first, _ := store.Create(ctx, note(user, models.NotifyAlert, base))
	_, _ = store.Create(ctx, note(user, models.NotifyInfo, base.Add(time.Second)))
	newest, _ := store.Create(ctx, note(user, models.NotifySuccess, base.Add(2*time.Second)))
	_, _ = store.Create(ctx, note(primitive.NewObjectID(), models.NotifyInfo, base))
	_, _ = store.MarkRead(ctx, first.ID, user)

	all, err := store.ListByUser(ctx, user, notificationstore.ListFilter{})
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != newest.ID {
		t.Errorf("expected 3 newest first, got %d", len(all))
	}

	unread, _ := store.ListByUser(ctx, user, notificationstore.ListFilter{UnreadOnly: true})
	if len(unread) != 2 {
		t.Errorf("unread: got %d, want 2", len(unread))
	}
	alerts, _ := store.ListByUser(ctx, user, notificationstore.ListFilter{Type: models.NotifyAlert})
	if len(alerts) != 1 {
		t.Errorf("alerts: got %d, want 1", len(alerts))
	}

	count, err := store.CountUnread(ctx, user)
	if err != nil || count != 2 {
		t.Errorf("CountUnread = %d, %v; want 2", count, err)
	}
}

func TestStore_DeleteReadBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := notificationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := primitive.NewObjectID()
	now := time.Now().UTC()
	oldRead, _ := store.Create(ctx, note(user, models.NotifyInfo, now.Add(-48*time.Hour)))
	oldUnread, _ := store.Create(ctx, note(user, models.NotifyInfo, now.Add(-48*time.Hour)))
	freshRead, _ := store.Create(ctx, note(user, models.NotifyInfo, now))
	_, _ = store.MarkRead(ctx, oldRead.ID, user)
	_, _ = store.MarkRead(ctx, freshRead.ID, user)

	n, err := store.DeleteReadBefore(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteReadBefore = %d, %v; want 1", n, err)
	}
	if _, err := store.GetByID(ctx, oldRead.ID); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Error("old read notification should be gone")
	}
	for _, keep := range []primitive.ObjectID{oldUnread.ID, freshRead.ID} {
		if _, err := store.GetByID(ctx, keep); err != nil {
			t.Errorf("notification %s should be kept: %v", keep.Hex(), err)
		}
	}
}
