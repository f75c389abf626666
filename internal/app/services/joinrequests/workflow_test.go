package joinrequests_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	joinsvc "github.com/dalemusser/flathub/internal/app/services/joinrequests"
	notifysvc "github.com/dalemusser/flathub/internal/app/services/notifications"
	flatsvc "github.com/dalemusser/flathub/internal/app/services/sharedflats"
	joinrequeststore "github.com/dalemusser/flathub/internal/app/store/joinrequests"
	notificationstore "github.com/dalemusser/flathub/internal/app/store/notifications"
	sharedflatstore "github.com/dalemusser/flathub/internal/app/store/sharedflats"
	userstore "github.com/dalemusser/flathub/internal/app/store/users"
	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/app/system/indexes"
	"github.com/dalemusser/flathub/internal/app/system/notifybus"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	wf    *joinsvc.Workflow
	flats *sharedflatstore.Store
	users *userstore.Store
	notes *notificationstore.Store
	fx    *testutil.Fixtures
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	flats := sharedflatstore.New(db)
	users := userstore.New(db)
	notes := notificationstore.New(db)
	dispatcher := notifysvc.New(notes, users, notifybus.Nop{}, zap.NewNop())
	requests := joinrequeststore.New(db)
	locks := flatlock.NewLocal()
	residents := flatsvc.New(flats, users, requests, locks, zap.NewNop())
	wf := joinsvc.New(flats, requests, users, residents, dispatcher, locks, zap.NewNop())

	return env{wf: wf, flats: flats, users: users, notes: notes, fx: testutil.NewFixtures(t, db)}
}

// notificationTypes returns how many notifications of each type u has.
func (e env) notificationTypes(t *testing.T, ctx context.Context, u models.User) map[string]int {
	t.Helper()
	list, err := e.notes.ListByUser(ctx, u.ID, notificationstore.ListFilter{})
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	out := map[string]int{}
	for _, n := range list {
		out[n.Type]++
	}
	return out
}

func TestJoin_RequestAcceptFill(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	founder := e.fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	requester := e.fx.CreateUser(ctx, "Rex", "rex@example.com", 24)
	latecomer := e.fx.CreateUser(ctx, "Lou", "lou@example.com", 28)
	flat := e.fx.CreateFlat(ctx, founder, "Two Room", 2)

	// Request.
	jr, err := e.wf.Request(ctx, flat.ID, requester.ID)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if jr.Status != models.JoinPending {
		t.Errorf("status: got %q, want pending", jr.Status)
	}
	got := e.notificationTypes(t, ctx, founder)
	if got[models.NotifyAlert] != 1 || got[models.NotifyInfo] != 1 {
		t.Errorf("founder notifications after request: %v, want one alert and one info", got)
	}
	u, _ := e.users.GetByID(ctx, requester.ID)
	if !u.JoinRequestPending {
		t.Error("expected requester to be flagged pending")
	}

	// Accept.
	accepted, err := e.wf.Accept(ctx, flat.ID, jr.ID, founder.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if accepted.Status != models.JoinAccepted || accepted.ResolvedAt == nil {
		t.Errorf("accepted request: %+v", accepted)
	}

	stored, err := e.flats.GetByID(ctx, flat.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.CountResidents != 2 || !stored.Full {
		t.Errorf("flat: count=%d full=%v, want 2 true", stored.CountResidents, stored.Full)
	}
	if !stored.IsMember(requester.ID) || stored.ShouldBeAdministeredBy(requester.ID) {
		t.Error("requester should be a default resident")
	}
	for _, who := range []models.User{founder, requester} {
		if got := e.notificationTypes(t, ctx, who); got[models.NotifySuccess] != 1 {
			t.Errorf("%s: got %v, want one success", who.Profile.Name, got)
		}
	}
	u, _ = e.users.GetByID(ctx, requester.ID)
	if u.JoinRequestPending || !u.HasSharedFlat || u.SharedFlatID == nil || *u.SharedFlatID != flat.ID {
		t.Errorf("requester membership pointers not updated: %+v", u)
	}

	// The flat is now full.
	if _, err := e.wf.Request(ctx, flat.ID, latecomer.ID); !errors.Is(err, apperr.ErrCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}

	// Accepting twice is a state error.
	if _, err := e.wf.Accept(ctx, flat.ID, jr.ID, founder.ID); !errors.Is(err, apperr.ErrState) {
		t.Errorf("expected state error on second accept, got %v", err)
	}
}

func TestJoin_Reject(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	founder := e.fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	requester := e.fx.CreateUser(ctx, "Rex", "rex@example.com", 24)
	flat := e.fx.CreateFlat(ctx, founder, "Loft", 3)

	jr, err := e.wf.Request(ctx, flat.ID, requester.ID)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	rejected, err := e.wf.Reject(ctx, flat.ID, jr.ID, founder.ID)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.JoinRejected {
		t.Errorf("status: got %q, want rejected", rejected.Status)
	}
	if got := e.notificationTypes(t, ctx, requester); got[models.NotifyAlert] != 1 {
		t.Errorf("requester notifications: %v, want one alert", got)
	}
	stored, _ := e.flats.GetByID(ctx, flat.ID)
	if stored.CountResidents != 1 {
		t.Errorf("reject must not add a resident, got %d", stored.CountResidents)
	}

	// A rejected requester may ask again.
	if _, err := e.wf.Request(ctx, flat.ID, requester.ID); err != nil {
		t.Errorf("second Request after reject failed: %v", err)
	}
	if _, err := e.wf.Accept(ctx, flat.ID, jr.ID, founder.ID); !errors.Is(err, apperr.ErrState) {
		t.Errorf("expected state error accepting a rejected request, got %v", err)
	}
}

func TestJoin_RequestErrors(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	founder := e.fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	flat := e.fx.CreateFlat(ctx, founder, "Loft", 3)
	otherFounder := e.fx.CreateUser(ctx, "Oto", "oto@example.com", 33)
	e.fx.CreateFlat(ctx, otherFounder, "Elsewhere", 3)
	other := e.fx.CreateFlat(ctx, e.fx.CreateUser(ctx, "Ann", "ann@example.com", 41), "Third", 3)
	pendingUser := e.fx.CreateUser(ctx, "Pat", "pat@example.com", 22)
	if _, err := e.wf.Request(ctx, other.ID, pendingUser.ID); err != nil {
		t.Fatalf("setup Request failed: %v", err)
	}

	tests := []struct {
		name   string
		flatID primitive.ObjectID
		userID primitive.ObjectID
		want   error
	}{
		{"already a resident here", flat.ID, founder.ID, apperr.ErrDuplicate},
		{"lives in another flat", flat.ID, otherFounder.ID, apperr.ErrDuplicate},
		{"pending elsewhere", flat.ID, pendingUser.ID, apperr.ErrDuplicate},
		{"missing flat", primitive.NewObjectID(), pendingUser.ID, apperr.ErrNotFound},
		{"missing user", flat.ID, primitive.NewObjectID(), apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.wf.Request(ctx, tt.flatID, tt.userID)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestJoin_ResolveErrors(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	founder := e.fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	resident := e.fx.CreateUser(ctx, "Ria", "ria@example.com", 26)
	requester := e.fx.CreateUser(ctx, "Rex", "rex@example.com", 24)
	flat := e.fx.CreateFlat(ctx, founder, "Loft", 3)
	e.fx.AddResident(ctx, flat, resident)
	elsewhere := e.fx.CreateFlat(ctx, e.fx.CreateUser(ctx, "Ann", "ann@example.com", 41), "Other", 3)

	jr, err := e.wf.Request(ctx, flat.ID, requester.ID)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	tests := []struct {
		name      string
		flatID    primitive.ObjectID
		requestID primitive.ObjectID
		actor     primitive.ObjectID
		want      error
	}{
		{"non-admin resident", flat.ID, jr.ID, resident.ID, apperr.ErrAuthorization},
		{"requester", flat.ID, jr.ID, requester.ID, apperr.ErrAuthorization},
		{"request of another flat", elsewhere.ID, jr.ID, elsewhere.Residents[0].UserID, apperr.ErrNotFound},
		{"missing request", flat.ID, primitive.NewObjectID(), founder.ID, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.wf.Accept(ctx, tt.flatID, tt.requestID, tt.actor); !errors.Is(err, tt.want) {
				t.Errorf("Accept: expected %v, got %v", tt.want, err)
			}
			if _, err := e.wf.Reject(ctx, tt.flatID, tt.requestID, tt.actor); !errors.Is(err, tt.want) {
				t.Errorf("Reject: expected %v, got %v", tt.want, err)
			}
		})
	}

	// The request survived every failed attempt.
	list, err := e.wf.ListForFlat(ctx, flat.ID, resident.ID, models.JoinPending)
	if err != nil {
		t.Fatalf("ListForFlat failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("pending: got %d, want 1", len(list))
	}
	if _, err := e.wf.ListForFlat(ctx, flat.ID, requester.ID, ""); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("expected authorization error for non-resident, got %v", err)
	}
	if _, err := e.wf.ListForFlat(ctx, flat.ID, founder.ID, "maybe"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}

func TestJoin_ConcurrentAcceptsRespectSize(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	founder := e.fx.CreateUser(ctx, "Fay", "fay@example.com", 30)
	flat := e.fx.CreateFlat(ctx, founder, "Tiny", 2)
	candidates := e.fx.CreateUsers(ctx, "cand", 4)

	var requests []models.JoinRequest
	for _, c := range candidates {
		jr, err := e.wf.Request(ctx, flat.ID, c.ID)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		requests = append(requests, jr)
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for _, jr := range requests {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			_, err := e.wf.Accept(ctx, flat.ID, id, founder.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case errors.Is(err, apperr.ErrCapacity):
			default:
				t.Errorf("unexpected Accept error: %v", err)
			}
		}(jr.ID)
	}
	wg.Wait()

	if oks != 1 {
		t.Errorf("got %d successful accepts, want 1", oks)
	}
	stored, _ := e.flats.GetByID(ctx, flat.ID)
	if stored.CountResidents != 2 || len(stored.Residents) != 2 {
		t.Errorf("flat overfilled: %d residents", len(stored.Residents))
	}
}
