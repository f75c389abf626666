// Package ledger appends entries to a shared flat's event chain and lists
// them. Appends for one flat are serialized through flatlock so that numbers
// stay gapless and only the newest entry is flagged as the head.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	flatsvc "github.com/dalemusser/flathub/internal/app/services/sharedflats"
	eventstore "github.com/dalemusser/flathub/internal/app/store/events"
	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultNeedTTL is used for need entries without an explicit deadline when
// no TTL is configured.
const DefaultNeedTTL = 7 * 24 * time.Hour

// EventRepo is the chain persistence the service needs.
type EventRepo interface {
	Insert(ctx context.Context, e models.Event) error
	Head(ctx context.Context, flatID primitive.ObjectID) (*models.Event, error)
	LatestOfType(ctx context.Context, flatID primitive.ObjectID, eventType string) (*models.Event, error)
	CountByFlat(ctx context.Context, flatID primitive.ObjectID) (int64, error)
	ListByFlat(ctx context.Context, flatID primitive.ObjectID, f eventstore.ListFilter) ([]models.Event, error)
	ClearLast(ctx context.Context, flatID primitive.ObjectID, before int64) (int64, error)
}

// Residents resolves an actor and a flat they must live in.
type Residents interface {
	ProvideContext(ctx context.Context, userID, flatID primitive.ObjectID) (flatsvc.Context, error)
}

// Notifier fans a message out to a flat's residents.
type Notifier interface {
	NotifyFlat(ctx context.Context, flat models.SharedFlat, message, typ string, exclude ...primitive.ObjectID) error
}

// Filter narrows List.
type Filter = eventstore.ListFilter

// Service is the ledger service.
type Service struct {
	events    EventRepo
	residents Residents
	notify    Notifier
	locks     flatlock.Locker
	needTTL   time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// New constructs a Service. A non-positive needTTL selects DefaultNeedTTL.
func New(events EventRepo, residents Residents, notify Notifier, locks flatlock.Locker, needTTL time.Duration, logger *zap.Logger) *Service {
	if needTTL <= 0 {
		needTTL = DefaultNeedTTL
	}
	return &Service{
		events:    events,
		residents: residents,
		notify:    notify,
		locks:     locks,
		needTTL:   needTTL,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Append adds a new entry authored by authorID to the flat's chain.
//
// The new entry, the flip of older heads and the resident fan-out are
// written concurrently and all of them run to completion. The first failure
// is returned; writes that did succeed are not undone. The next append
// numbers from the highest stored entry and clears every older head, so a
// partial append never blocks the chain.
func (s *Service) Append(ctx context.Context, flatID, authorID primitive.ObjectID, payload models.EventPayload) (models.Event, error) {
	const op = "ledger.Append"

	unlock, err := s.locks.Lock(ctx, flatlock.Key(flatID))
	if err != nil {
		return models.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	rc, err := s.residents.ProvideContext(ctx, authorID, flatID)
	if err != nil {
		return models.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	flat := rc.Flat

	if payload == nil {
		return models.Event{}, apperr.Validation(op, "event payload is required")
	}
	payload = sanitize(payload)
	if err := payload.Validate(); err != nil {
		return models.Event{}, err
	}
	if need, ok := payload.(models.NeedPayload); ok && need.RequestedResidentID != nil {
		if !flat.IsMember(*need.RequestedResidentID) {
			return models.Event{}, apperr.Validation(op, "requested resident is not a resident of the shared flat")
		}
	}
	author := authorOf(rc.User)

	head, err := optional(s.events.Head(ctx, flatID))
	if err != nil {
		return models.Event{}, fmt.Errorf("%s: load head: %w", op, err)
	}
	var lastExpense *models.Event
	if payload.EventType() == models.EventExpense {
		lastExpense, err = optional(s.events.LatestOfType(ctx, flatID, models.EventExpense))
		if err != nil {
			return models.Event{}, fmt.Errorf("%s: load last expense: %w", op, err)
		}
	}
	prior, err := s.events.CountByFlat(ctx, flatID)
	if err != nil {
		return models.Event{}, fmt.Errorf("%s: count entries: %w", op, err)
	}

	e, err := buildEntry(entryInput{
		FlatID:      flatID,
		Author:      author,
		Head:        head,
		LastExpense: lastExpense,
		Prior:       prior,
		Payload:     payload,
		Now:         s.now(),
		NeedTTL:     s.needTTL,
	})
	if err != nil {
		return models.Event{}, err
	}

	// No group context: one failed write must not cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		if err := s.events.Insert(ctx, e); err != nil {
			if errors.Is(err, eventstore.ErrNumberTaken) {
				return apperr.Wrap(apperr.KindState, op, err)
			}
			return fmt.Errorf("%s: insert entry: %w", op, err)
		}
		return nil
	})
	if head != nil {
		g.Go(func() error {
			if _, err := s.events.ClearLast(ctx, flatID, e.Number); err != nil {
				return fmt.Errorf("%s: flip previous head: %w", op, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return s.notify.NotifyFlat(ctx, flat,
			fmt.Sprintf("New %s event created by %s", e.Type, author.Name), models.NotifyInfo)
	})
	if err := g.Wait(); err != nil {
		s.log.Error("ledger append incomplete",
			zap.String("shared_flat_id", flatID.Hex()),
			zap.Int64("number", e.Number),
			zap.Error(err))
		return e, err
	}

	s.log.Info("ledger entry appended",
		zap.String("shared_flat_id", flatID.Hex()),
		zap.String("event_id", e.ID.Hex()),
		zap.String("type", e.Type),
		zap.Int64("number", e.Number))
	return e, nil
}

// List returns the flat's entries, newest first. Residents only.
func (s *Service) List(ctx context.Context, flatID, actorID primitive.ObjectID, f Filter) ([]models.Event, error) {
	const op = "ledger.List"

	if _, err := s.residents.ProvideContext(ctx, actorID, flatID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if f.Type != "" && !models.IsEventType(f.Type) {
		return nil, apperr.Validation(op, "unknown event type %q", f.Type)
	}

	out, err := s.events.ListByFlat(ctx, flatID, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	for i := range out {
		if out[i].Need != nil {
			out[i].Need.Status = out[i].Need.EffectiveStatus(now)
		}
	}
	return out, nil
}

func authorOf(u *models.User) models.Author {
	return models.Author{
		UserID:  u.ID,
		Name:    htmlsanitize.PlainText(u.Profile.Name),
		Picture: u.Profile.Picture,
	}
}

// optional turns mongo.ErrNoDocuments into a nil result.
func optional(e *models.Event, err error) (*models.Event, error) {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return e, err
}

func sanitize(p models.EventPayload) models.EventPayload {
	if need, ok := p.(models.NeedPayload); ok {
		need.Message = htmlsanitize.PlainText(need.Message)
		return need
	}
	return p
}
