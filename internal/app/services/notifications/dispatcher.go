// Package notifications creates, lists and reads per-user notifications and
// fans flat-wide messages out to residents.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	notificationstore "github.com/dalemusser/flathub/internal/app/store/notifications"
	"github.com/dalemusser/flathub/internal/app/system/notifybus"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Repo is the notification persistence the dispatcher needs.
type Repo interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Notification, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, f notificationstore.ListFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) (bool, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// UserRepo resolves residents to user records.
type UserRepo interface {
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// Filter narrows ListFor.
type Filter = notificationstore.ListFilter

// maxFanOut bounds concurrent inserts during a flat-wide fan-out.
const maxFanOut = 8

// Dispatcher is the notification service.
type Dispatcher struct {
	repo  Repo
	users UserRepo
	bus   notifybus.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// New constructs a Dispatcher. A nil bus disables live publishing.
func New(repo Repo, users UserRepo, bus notifybus.Publisher, logger *zap.Logger) *Dispatcher {
	if bus == nil {
		bus = notifybus.Nop{}
	}
	return &Dispatcher{
		repo:  repo,
		users: users,
		bus:   bus,
		log:   logger,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NotifyUser creates one unread notification for userID.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID primitive.ObjectID, message, typ string) (models.Notification, error) {
	const op = "notifications.NotifyUser"

	if !models.IsNotificationType(typ) {
		return models.Notification{}, apperr.Validation(op, "unknown notification type %q", typ)
	}
	if strings.TrimSpace(message) == "" {
		return models.Notification{}, apperr.Validation(op, "message is required")
	}

	n, err := d.repo.Create(ctx, models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Message:   message,
		Type:      typ,
		CreatedAt: d.now(),
		Readed:    false,
	})
	if err != nil {
		return models.Notification{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := d.bus.Publish(ctx, n); err != nil {
		d.log.Warn("notification publish failed",
			zap.String("notification_id", n.ID.Hex()),
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
	}
	return n, nil
}

// NotifyFlat sends message to every resident of flat except those in
// exclude. Residents whose user record no longer exists are skipped.
// Inserts run concurrently; the first failure is returned after all settle.
func (d *Dispatcher) NotifyFlat(ctx context.Context, flat models.SharedFlat, message, typ string, exclude ...primitive.ObjectID) error {
	const op = "notifications.NotifyFlat"

	users, err := d.users.GetByIDs(ctx, flat.ResidentIDs())
	if err != nil {
		return fmt.Errorf("%s: load residents: %w", op, err)
	}

	skip := make(map[primitive.ObjectID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for _, u := range users {
		if _, ok := skip[u.ID]; ok {
			continue
		}
		userID := u.ID
		g.Go(func() error {
			_, err := d.NotifyUser(gctx, userID, message, typ)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkRead flips a notification owned by actorID to read. A second call
// fails with a state error.
func (d *Dispatcher) MarkRead(ctx context.Context, id, actorID primitive.ObjectID) (models.Notification, error) {
	const op = "notifications.MarkRead"

	ok, err := d.repo.MarkRead(ctx, id, actorID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("%s: %w", op, err)
	}

	n, err := d.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Notification{}, apperr.NotFound(op, "notification %s not found", id.Hex())
		}
		return models.Notification{}, fmt.Errorf("%s: %w", op, err)
	}
	if n.UserID != actorID {
		return models.Notification{}, apperr.NotFound(op, "notification %s not found", id.Hex())
	}
	if !ok {
		return models.Notification{}, apperr.State(op, "notification %s was already read", id.Hex())
	}
	return n, nil
}

// ListFor returns the user's notifications, newest first.
func (d *Dispatcher) ListFor(ctx context.Context, userID primitive.ObjectID, f Filter) ([]models.Notification, error) {
	if f.Type != "" && !models.IsNotificationType(f.Type) {
		return nil, apperr.Validation("notifications.ListFor", "unknown notification type %q", f.Type)
	}
	out, err := d.repo.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("notifications.ListFor: %w", err)
	}
	return out, nil
}

// CountUnread returns how many unread notifications the user has.
func (d *Dispatcher) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	n, err := d.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("notifications.CountUnread: %w", err)
	}
	return n, nil
}
