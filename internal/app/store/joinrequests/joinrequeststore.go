// internal/app/store/joinrequests/joinrequeststore.go
package joinrequeststore

import (
	"context"
	"errors"

	"github.com/dalemusser/flathub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("join_requests")}
}

var (
	// ErrPendingExists is returned when the user already has a pending
	// request (enforced by a partial unique index on user_id).
	ErrPendingExists = errors.New("user already has a pending join request")
	// ErrNotPending is returned by SetStatus when the stored request is no
	// longer pending.
	ErrNotPending = errors.New("join request is not pending")
)

// Create inserts a new request.
func (s *Store) Create(ctx context.Context, jr models.JoinRequest) (models.JoinRequest, error) {
	if jr.ID.IsZero() {
		jr.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, jr); err != nil {
		if wafflemongo.IsDup(err) {
			return models.JoinRequest{}, ErrPendingExists
		}
		return models.JoinRequest{}, err
	}
	return jr, nil
}

// GetByID returns mongo.ErrNoDocuments if the request does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.JoinRequest, error) {
	var jr models.JoinRequest
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&jr); err != nil {
		return models.JoinRequest{}, err
	}
	return jr, nil
}

// FindPendingByUser returns the user's pending request, or mongo.ErrNoDocuments.
func (s *Store) FindPendingByUser(ctx context.Context, userID primitive.ObjectID) (models.JoinRequest, error) {
	var jr models.JoinRequest
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "status": models.JoinPending}).Decode(&jr)
	if err != nil {
		return models.JoinRequest{}, err
	}
	return jr, nil
}

// ListByUser returns every request the user made, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.JoinRequest, error) {
	return s.list(ctx, bson.M{"user_id": userID})
}

// ListByFlat returns requests for a flat, newest first, optionally filtered
// by status. If status is empty, returns all requests.
func (s *Store) ListByFlat(ctx context.Context, flatID primitive.ObjectID, status string) ([]models.JoinRequest, error) {
	filter := bson.M{"shared_flat_id": flatID}
	if status != "" {
		filter["status"] = status
	}
	return s.list(ctx, filter)
}

func (s *Store) list(ctx context.Context, filter bson.M) ([]models.JoinRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.JoinRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus persists a resolved request. The update only applies while the
// stored document is still pending.
func (s *Store) SetStatus(ctx context.Context, jr models.JoinRequest) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": jr.ID, "status": models.JoinPending},
		bson.M{"$set": bson.M{"status": jr.Status, "resolved_at": jr.ResolvedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotPending
	}
	return nil
}
