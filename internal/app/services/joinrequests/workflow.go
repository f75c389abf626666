// Package joinrequests implements the join request state machine:
// pending -> accepted | rejected. Only the flat's admin resolves a request,
// and a user holds at most one pending request at a time.
package joinrequests

import (
	"context"
	"errors"
	"fmt"
	"time"

	flatsvc "github.com/dalemusser/flathub/internal/app/services/sharedflats"
	joinrequeststore "github.com/dalemusser/flathub/internal/app/store/joinrequests"
	sharedflatstore "github.com/dalemusser/flathub/internal/app/store/sharedflats"
	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FlatRepo reads flats and persists membership changes.
type FlatRepo interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.SharedFlat, error)
	FindByResident(ctx context.Context, userID primitive.ObjectID) (models.SharedFlat, error)
	SaveMembership(ctx context.Context, f models.SharedFlat, prevCount int) error
}

// RequestRepo persists join requests.
type RequestRepo interface {
	Create(ctx context.Context, jr models.JoinRequest) (models.JoinRequest, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.JoinRequest, error)
	FindPendingByUser(ctx context.Context, userID primitive.ObjectID) (models.JoinRequest, error)
	ListByFlat(ctx context.Context, flatID primitive.ObjectID, status string) ([]models.JoinRequest, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.JoinRequest, error)
	SetStatus(ctx context.Context, jr models.JoinRequest) error
}

// UserRepo reads users and maintains their membership pointers.
type UserRepo interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetSharedFlat(ctx context.Context, userID, flatID primitive.ObjectID) error
	SetJoinRequestPending(ctx context.Context, userID primitive.ObjectID, pending bool) error
}

// Residents resolves an actor and a flat they must live in.
type Residents interface {
	ProvideContext(ctx context.Context, userID, flatID primitive.ObjectID) (flatsvc.Context, error)
}

// Notifier delivers workflow notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, userID primitive.ObjectID, message, typ string) (models.Notification, error)
	NotifyFlat(ctx context.Context, flat models.SharedFlat, message, typ string, exclude ...primitive.ObjectID) error
}

// Workflow runs join request transitions.
type Workflow struct {
	flats     FlatRepo
	requests  RequestRepo
	users     UserRepo
	residents Residents
	notify    Notifier
	locks     flatlock.Locker
	log       *zap.Logger
	now       func() time.Time
}

// New constructs a Workflow.
func New(flats FlatRepo, requests RequestRepo, users UserRepo, residents Residents, notify Notifier, locks flatlock.Locker, logger *zap.Logger) *Workflow {
	return &Workflow{
		flats:     flats,
		requests:  requests,
		users:     users,
		residents: residents,
		notify:    notify,
		locks:     locks,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Request files a pending request from askingUserID to join flatID and
// notifies the residents and, separately, the admin.
func (w *Workflow) Request(ctx context.Context, flatID, askingUserID primitive.ObjectID) (models.JoinRequest, error) {
	const op = "joinrequests.Request"

	unlock, err := w.lockPair(ctx, askingUserID, flatID)
	if err != nil {
		return models.JoinRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	flat, err := w.loadFlat(ctx, op, flatID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	user, err := w.loadUser(ctx, op, askingUserID)
	if err != nil {
		return models.JoinRequest{}, err
	}

	if flat.Full {
		return models.JoinRequest{}, apperr.Capacity(op, "shared flat %q is full", flat.Name)
	}
	if flat.IsMember(user.ID) {
		return models.JoinRequest{}, apperr.Duplicate(op, "you are already a resident of this shared flat")
	}
	if err := w.ensureHomeless(ctx, op, user); err != nil {
		return models.JoinRequest{}, err
	}
	if err := w.ensureNoPending(ctx, op, user); err != nil {
		return models.JoinRequest{}, err
	}
	admin, err := flat.Admin()
	if err != nil {
		return models.JoinRequest{}, err
	}

	jr, err := w.requests.Create(ctx, models.NewJoinRequest(user.ID, flat.ID, w.now()))
	if err != nil {
		if errors.Is(err, joinrequeststore.ErrPendingExists) {
			return models.JoinRequest{}, apperr.Duplicate(op, "one of your requests is already pending")
		}
		return models.JoinRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	name := displayName(user)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.users.SetJoinRequestPending(gctx, user.ID, true)
	})
	g.Go(func() error {
		return w.notify.NotifyFlat(gctx, flat,
			fmt.Sprintf("%s asked to join %s", name, flat.Name), models.NotifyInfo)
	})
	g.Go(func() error {
		_, err := w.notify.NotifyUser(gctx, admin.UserID,
			fmt.Sprintf("%s wants to join %s. Accept or reject the request.", name, flat.Name), models.NotifyAlert)
		return err
	})
	if err := g.Wait(); err != nil {
		return jr, fmt.Errorf("%s: %w", op, err)
	}

	w.log.Info("join request created",
		zap.String("join_request_id", jr.ID.Hex()),
		zap.String("shared_flat_id", flat.ID.Hex()),
		zap.String("user_id", user.ID.Hex()))
	return jr, nil
}

// Accept makes the requester a default resident of the flat.
func (w *Workflow) Accept(ctx context.Context, flatID, requestID, actingAdminID primitive.ObjectID) (models.JoinRequest, error) {
	const op = "joinrequests.Accept"

	res, unlock, err := w.resolve(ctx, op, flatID, requestID, actingAdminID, models.JoinAccepted)
	if err != nil {
		return models.JoinRequest{}, err
	}
	defer unlock()

	jr, flat := res.request, res.flat

	requester, err := w.loadUser(ctx, op, jr.UserID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if err := w.ensureHomeless(ctx, op, requester); err != nil {
		return models.JoinRequest{}, err
	}

	prevCount := flat.CountResidents
	if err := flat.AddResident(*requester, models.RoleDefault, w.now()); err != nil {
		return models.JoinRequest{}, err
	}
	if err := w.flats.SaveMembership(ctx, flat, prevCount); err != nil {
		if errors.Is(err, sharedflatstore.ErrConcurrentUpdate) {
			return models.JoinRequest{}, apperr.Wrap(apperr.KindState, op, err)
		}
		return models.JoinRequest{}, fmt.Errorf("%s: save membership: %w", op, err)
	}
	if err := w.saveStatus(ctx, op, jr); err != nil {
		return models.JoinRequest{}, err
	}

	name := displayName(requester)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.users.SetSharedFlat(gctx, requester.ID, flat.ID)
	})
	g.Go(func() error {
		return w.users.SetJoinRequestPending(gctx, requester.ID, false)
	})
	g.Go(func() error {
		return w.notify.NotifyFlat(gctx, flat,
			fmt.Sprintf("%s joined %s", name, flat.Name), models.NotifySuccess)
	})
	if err := g.Wait(); err != nil {
		return jr, fmt.Errorf("%s: %w", op, err)
	}

	w.log.Info("join request accepted",
		zap.String("join_request_id", jr.ID.Hex()),
		zap.String("shared_flat_id", flat.ID.Hex()),
		zap.Int("count_residents", flat.CountResidents))
	return jr, nil
}

// Reject closes the request without adding a resident.
func (w *Workflow) Reject(ctx context.Context, flatID, requestID, actingAdminID primitive.ObjectID) (models.JoinRequest, error) {
	const op = "joinrequests.Reject"

	res, unlock, err := w.resolve(ctx, op, flatID, requestID, actingAdminID, models.JoinRejected)
	if err != nil {
		return models.JoinRequest{}, err
	}
	defer unlock()

	jr, flat := res.request, res.flat
	if err := w.saveStatus(ctx, op, jr); err != nil {
		return models.JoinRequest{}, err
	}

	name := "A user"
	if requester, err := w.users.GetByID(ctx, jr.UserID); err == nil {
		name = displayName(requester)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.users.SetJoinRequestPending(gctx, jr.UserID, false)
	})
	g.Go(func() error {
		return w.notify.NotifyFlat(gctx, flat,
			fmt.Sprintf("The request of %s to join %s was rejected", name, flat.Name), models.NotifyAlert)
	})
	g.Go(func() error {
		_, err := w.notify.NotifyUser(gctx, jr.UserID,
			fmt.Sprintf("Your request to join %s was rejected", flat.Name), models.NotifyAlert)
		return err
	})
	if err := g.Wait(); err != nil {
		return jr, fmt.Errorf("%s: %w", op, err)
	}

	w.log.Info("join request rejected",
		zap.String("join_request_id", jr.ID.Hex()),
		zap.String("shared_flat_id", flat.ID.Hex()))
	return jr, nil
}

// ListForFlat returns a flat's requests, newest first. Residents only.
// An empty status returns every request.
func (w *Workflow) ListForFlat(ctx context.Context, flatID, actorID primitive.ObjectID, status string) ([]models.JoinRequest, error) {
	const op = "joinrequests.ListForFlat"

	switch status {
	case "", models.JoinPending, models.JoinAccepted, models.JoinRejected:
	default:
		return nil, apperr.Validation(op, "unknown join request status %q", status)
	}

	if _, err := w.residents.ProvideContext(ctx, actorID, flatID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := w.requests.ListByFlat(ctx, flatID, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListMine returns every request made by userID, newest first.
func (w *Workflow) ListMine(ctx context.Context, userID primitive.ObjectID) ([]models.JoinRequest, error) {
	out, err := w.requests.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("joinrequests.ListMine: %w", err)
	}
	return out, nil
}

type resolved struct {
	request models.JoinRequest
	flat    models.SharedFlat
}

// resolve takes the locks and runs every precondition shared by Accept and
// Reject. On success the request has been moved to status in memory only
// and the caller owns the returned unlock.
func (w *Workflow) resolve(ctx context.Context, op string, flatID, requestID, actorID primitive.ObjectID, status string) (resolved, flatlock.Unlock, error) {
	// The requester is only known after a first read; the request is read
	// again under the locks.
	jr, err := w.loadRequest(ctx, op, requestID)
	if err != nil {
		return resolved{}, nil, err
	}

	unlock, err := w.lockPair(ctx, jr.UserID, flatID)
	if err != nil {
		return resolved{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	fail := func(err error) (resolved, flatlock.Unlock, error) {
		unlock()
		return resolved{}, nil, err
	}

	flat, err := w.loadFlat(ctx, op, flatID)
	if err != nil {
		return fail(err)
	}
	if _, err := flat.Admin(); err != nil {
		return fail(err)
	}
	if !flat.ShouldBeAdministeredBy(actorID) {
		return fail(apperr.Authorization(op, "only the shared flat admin may resolve join requests"))
	}

	jr, err = w.loadRequest(ctx, op, requestID)
	if err != nil {
		return fail(err)
	}
	if jr.SharedFlatID != flat.ID {
		return fail(apperr.NotFound(op, "join request %s not found for this shared flat", requestID.Hex()))
	}
	if err := jr.Resolve(status, w.now()); err != nil {
		return fail(err)
	}
	return resolved{request: jr, flat: flat}, unlock, nil
}

func (w *Workflow) saveStatus(ctx context.Context, op string, jr models.JoinRequest) error {
	if err := w.requests.SetStatus(ctx, jr); err != nil {
		if errors.Is(err, joinrequeststore.ErrNotPending) {
			return apperr.Wrap(apperr.KindState, op, err)
		}
		return fmt.Errorf("%s: save status: %w", op, err)
	}
	return nil
}

// lockPair takes the user lock, then the flat lock.
func (w *Workflow) lockPair(ctx context.Context, userID, flatID primitive.ObjectID) (flatlock.Unlock, error) {
	unlockUser, err := w.locks.Lock(ctx, flatlock.UserKey(userID))
	if err != nil {
		return nil, err
	}
	unlockFlat, err := w.locks.Lock(ctx, flatlock.Key(flatID))
	if err != nil {
		unlockUser()
		return nil, err
	}
	return func() {
		unlockFlat()
		unlockUser()
	}, nil
}

func (w *Workflow) ensureHomeless(ctx context.Context, op string, u *models.User) error {
	if u.HasSharedFlat {
		return apperr.Duplicate(op, "user already has a shared flat")
	}
	_, err := w.flats.FindByResident(ctx, u.ID)
	switch {
	case err == nil:
		return apperr.Duplicate(op, "user already has a shared flat")
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil
	default:
		return fmt.Errorf("%s: find by resident: %w", op, err)
	}
}

func (w *Workflow) ensureNoPending(ctx context.Context, op string, u *models.User) error {
	if u.JoinRequestPending {
		return apperr.Duplicate(op, "one of your requests is already pending")
	}
	_, err := w.requests.FindPendingByUser(ctx, u.ID)
	switch {
	case err == nil:
		return apperr.Duplicate(op, "one of your requests is already pending")
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil
	default:
		return fmt.Errorf("%s: find pending: %w", op, err)
	}
}

func (w *Workflow) loadFlat(ctx context.Context, op string, id primitive.ObjectID) (models.SharedFlat, error) {
	flat, err := w.flats.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.SharedFlat{}, apperr.NotFound(op, "shared flat %s not found", id.Hex())
		}
		return models.SharedFlat{}, fmt.Errorf("%s: load flat: %w", op, err)
	}
	return flat, nil
}

func (w *Workflow) loadUser(ctx context.Context, op string, id primitive.ObjectID) (*models.User, error) {
	u, err := w.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound(op, "user %s not found", id.Hex())
		}
		return nil, fmt.Errorf("%s: load user: %w", op, err)
	}
	return u, nil
}

func (w *Workflow) loadRequest(ctx context.Context, op string, id primitive.ObjectID) (models.JoinRequest, error) {
	jr, err := w.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.JoinRequest{}, apperr.NotFound(op, "join request %s not found", id.Hex())
		}
		return models.JoinRequest{}, fmt.Errorf("%s: load join request: %w", op, err)
	}
	return jr, nil
}

func displayName(u *models.User) string {
	if name := htmlsanitize.PlainText(u.Profile.Name); name != "" {
		return name
	}
	return "A user"
}
