// internal/app/store/events/eventstore.go
package eventstore

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
	return &Store{c: db.Collection("events")}
}

// ErrNumberTaken is returned when an entry with the same chain number
// already exists for the flat (unique index on shared_flat_id+number).
var ErrNumberTaken = errors.New("chain number already used for this shared flat")

// Insert stores a new ledger entry.
func (s *Store) Insert(ctx context.Context, e models.Event) error {
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrNumberTaken
		}
		return err
	}
	return nil
}

// Head returns the highest-numbered entry of the flat, or
// mongo.ErrNoDocuments when the chain is empty. The last flag is not
// consulted: an append that stopped halfway can leave it unset or stale.
func (s *Store) Head(ctx context.Context, flatID primitive.ObjectID) (*models.Event, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}})
	var e models.Event
	if err := s.c.FindOne(ctx, bson.M{"shared_flat_id": flatID}, opts).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestOfType returns the highest-numbered entry of the given type for the
// flat, or mongo.ErrNoDocuments.
func (s *Store) LatestOfType(ctx context.Context, flatID primitive.ObjectID, eventType string) (*models.Event, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}})
	var e models.Event
	if err := s.c.FindOne(ctx, bson.M{"shared_flat_id": flatID, "type": eventType}, opts).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CountByFlat returns the number of entries in the flat's chain.
func (s *Store) CountByFlat(ctx context.Context, flatID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"shared_flat_id": flatID})
}

// ListFilter narrows ListByFlat.
type ListFilter struct {
	Type  string // empty means all types
	Limit int64
}

// ListByFlat returns the flat's entries ordered by number descending.
func (s *Store) ListByFlat(ctx context.Context, flatID primitive.ObjectID, f ListFilter) ([]models.Event, error) {
	filter := bson.M{"shared_flat_id": flatID}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearLast sets last to false on every entry of the flat numbered below
// before. Clearing nothing is not an error, so a retried append also
// clears heads a previous attempt left behind.
func (s *Store) ClearLast(ctx context.Context, flatID primitive.ObjectID, before int64) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"shared_flat_id": flatID, "last": true, "number": bson.M{"$lt": before}},
		bson.M{"$set": bson.M{"last": false}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
