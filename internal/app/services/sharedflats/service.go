// Package sharedflats owns the lifecycle of shared flats: creation with a
// founding admin, lookup, the membership-checked request context, and
// deletion.
package sharedflats

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedflatstore "github.com/dalemusser/flathub/internal/app/store/sharedflats"
	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Repo is the shared flat persistence the service needs.
type Repo interface {
	Create(ctx context.Context, f models.SharedFlat) (models.SharedFlat, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.SharedFlat, error)
	GetByName(ctx context.Context, name string) (models.SharedFlat, error)
	FindByResident(ctx context.Context, userID primitive.ObjectID) (models.SharedFlat, error)
	List(ctx context.Context, f sharedflatstore.ListFilter) ([]models.SharedFlat, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

// UserRepo reads users and maintains their membership pointers.
type UserRepo interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetSharedFlat(ctx context.Context, userID, flatID primitive.ObjectID) error
	ClearSharedFlat(ctx context.Context, ids []primitive.ObjectID) error
	SetJoinRequestPending(ctx context.Context, userID primitive.ObjectID, pending bool) error
}

// JoinRequestRepo lets deletion close requests that can no longer be served.
type JoinRequestRepo interface {
	ListByFlat(ctx context.Context, flatID primitive.ObjectID, status string) ([]models.JoinRequest, error)
	SetStatus(ctx context.Context, jr models.JoinRequest) error
}

// ListFilter narrows List.
type ListFilter = sharedflatstore.ListFilter

// Context is the resolved actor and target flat of a request.
type Context struct {
	User *models.User
	Flat models.SharedFlat
}

// Service implements shared flat operations.
type Service struct {
	flats    Repo
	users    UserRepo
	requests JoinRequestRepo
	locks    flatlock.Locker
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a Service.
func New(flats Repo, users UserRepo, requests JoinRequestRepo, locks flatlock.Locker, logger *zap.Logger) *Service {
	return &Service{
		flats:    flats,
		users:    users,
		requests: requests,
		locks:    locks,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create builds a flat with founderID as its only resident and admin.
func (s *Service) Create(ctx context.Context, founderID primitive.ObjectID, in models.NewSharedFlatInput) (models.SharedFlat, error) {
	const op = "sharedflats.Create"

	unlock, err := s.locks.Lock(ctx, flatlock.UserKey(founderID))
	if err != nil {
		return models.SharedFlat{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	founder, err := s.loadUser(ctx, op, founderID)
	if err != nil {
		return models.SharedFlat{}, err
	}
	if err := s.ensureHomeless(ctx, op, founder); err != nil {
		return models.SharedFlat{}, err
	}

	in.Name = htmlsanitize.PlainText(in.Name)
	flat, err := models.NewSharedFlat(*founder, in, s.now())
	if err != nil {
		return models.SharedFlat{}, err
	}

	flat, err = s.flats.Create(ctx, flat)
	if err != nil {
		if errors.Is(err, sharedflatstore.ErrDuplicateName) {
			return models.SharedFlat{}, apperr.Duplicate(op, "a shared flat named %q already exists", in.Name)
		}
		return models.SharedFlat{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.SetSharedFlat(ctx, founder.ID, flat.ID); err != nil {
		return models.SharedFlat{}, fmt.Errorf("%s: set founder membership: %w", op, err)
	}

	s.log.Info("shared flat created",
		zap.String("shared_flat_id", flat.ID.Hex()),
		zap.String("founder_id", founder.ID.Hex()),
		zap.Int("size", flat.Size))
	return flat, nil
}

// ensureHomeless fails with a duplicate error if u already lives in a flat.
func (s *Service) ensureHomeless(ctx context.Context, op string, u *models.User) error {
	if u.HasSharedFlat {
		return apperr.Duplicate(op, "user already has a shared flat")
	}
	_, err := s.flats.FindByResident(ctx, u.ID)
	switch {
	case err == nil:
		return apperr.Duplicate(op, "user already has a shared flat")
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil
	default:
		return fmt.Errorf("%s: find by resident: %w", op, err)
	}
}

// Get returns a flat by id.
func (s *Service) Get(ctx context.Context, flatID primitive.ObjectID) (models.SharedFlat, error) {
	return s.loadFlat(ctx, "sharedflats.Get", flatID)
}

// View returns a flat as seen by viewerID. Private flats are reported as
// missing to anyone but their residents.
func (s *Service) View(ctx context.Context, flatID, viewerID primitive.ObjectID) (models.SharedFlat, error) {
	const op = "sharedflats.View"

	flat, err := s.loadFlat(ctx, op, flatID)
	if err != nil {
		return models.SharedFlat{}, err
	}
	if flat.Private && !flat.IsMember(viewerID) {
		return models.SharedFlat{}, apperr.NotFound(op, "shared flat %s not found", flatID.Hex())
	}
	return flat, nil
}

// ViewByName is View keyed by the flat's name, compared without case or
// diacritics.
func (s *Service) ViewByName(ctx context.Context, name string, viewerID primitive.ObjectID) (models.SharedFlat, error) {
	const op = "sharedflats.ViewByName"

	name = htmlsanitize.PlainText(name)
	if name == "" {
		return models.SharedFlat{}, apperr.Validation(op, "name is required")
	}
	flat, err := s.flats.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.SharedFlat{}, apperr.NotFound(op, "shared flat %q not found", name)
		}
		return models.SharedFlat{}, fmt.Errorf("%s: %w", op, err)
	}
	if flat.Private && !flat.IsMember(viewerID) {
		return models.SharedFlat{}, apperr.NotFound(op, "shared flat %q not found", name)
	}
	return flat, nil
}

// Mine returns the flat userID lives in.
func (s *Service) Mine(ctx context.Context, userID primitive.ObjectID) (models.SharedFlat, error) {
	flat, err := s.flats.FindByResident(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.SharedFlat{}, apperr.NotFound("sharedflats.Mine", "you do not live in a shared flat")
		}
		return models.SharedFlat{}, fmt.Errorf("sharedflats.Mine: %w", err)
	}
	return flat, nil
}

// List returns flats matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.SharedFlat, error) {
	flats, err := s.flats.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("sharedflats.List: %w", err)
	}
	return flats, nil
}

// ProvideContext resolves the actor and the flat, and checks the actor is
// a resident of it.
func (s *Service) ProvideContext(ctx context.Context, userID, flatID primitive.ObjectID) (Context, error) {
	const op = "sharedflats.ProvideContext"

	flat, err := s.loadFlat(ctx, op, flatID)
	if err != nil {
		return Context{}, err
	}
	user, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return Context{}, err
	}
	if !flat.IsMember(user.ID) {
		return Context{}, apperr.Authorization(op, "only residents of the shared flat may do this")
	}
	return Context{User: user, Flat: flat}, nil
}

// Delete removes a flat. Only its admin may do so. Residents lose their
// membership pointer and pending join requests for the flat are rejected.
// The ledger is kept.
func (s *Service) Delete(ctx context.Context, flatID, actorID primitive.ObjectID) error {
	const op = "sharedflats.Delete"

	unlock, err := s.locks.Lock(ctx, flatlock.Key(flatID))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	flat, err := s.loadFlat(ctx, op, flatID)
	if err != nil {
		return err
	}
	if _, err := flat.Admin(); err != nil {
		return err
	}
	if !flat.ShouldBeAdministeredBy(actorID) {
		return apperr.Authorization(op, "only the shared flat admin may delete it")
	}

	pending, err := s.requests.ListByFlat(ctx, flatID, models.JoinPending)
	if err != nil {
		return fmt.Errorf("%s: list pending requests: %w", op, err)
	}

	if _, err := s.flats.Delete(ctx, flatID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.ClearSharedFlat(ctx, flat.ResidentIDs()); err != nil {
		return fmt.Errorf("%s: clear residents: %w", op, err)
	}

	now := s.now()
	for _, jr := range pending {
		if err := jr.Resolve(models.JoinRejected, now); err != nil {
			continue
		}
		if err := s.requests.SetStatus(ctx, jr); err != nil {
			s.log.Warn("could not reject join request of deleted flat",
				zap.String("join_request_id", jr.ID.Hex()), zap.Error(err))
			continue
		}
		if err := s.users.SetJoinRequestPending(ctx, jr.UserID, false); err != nil {
			return fmt.Errorf("%s: clear pending flag: %w", op, err)
		}
	}

	s.log.Info("shared flat deleted",
		zap.String("shared_flat_id", flatID.Hex()),
		zap.String("actor_id", actorID.Hex()))
	return nil
}

func (s *Service) loadFlat(ctx context.Context, op string, id primitive.ObjectID) (models.SharedFlat, error) {
	flat, err := s.flats.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.SharedFlat{}, apperr.NotFound(op, "shared flat %s not found", id.Hex())
		}
		return models.SharedFlat{}, fmt.Errorf("%s: load flat: %w", op, err)
	}
	return flat, nil
}

func (s *Service) loadUser(ctx context.Context, op string, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound(op, "user %s not found", id.Hex())
		}
		return nil, fmt.Errorf("%s: load user: %w", op, err)
	}
	return u, nil
}
