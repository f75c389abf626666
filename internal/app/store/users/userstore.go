package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/flathub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
var ErrDuplicateEmail = errors.New("a user with this email already exists")

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByIDs loads every user in ids. Missing IDs are skipped; the result
// order is unspecified.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetByEmail looks up a user by case-insensitive email. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Accounts are normally created by the identity
// layer; this exists for seeding and tests.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Email = normalizeEmail(u.Email)
	u.Profile.Name = strings.TrimSpace(u.Profile.Name)

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// SetSharedFlat records that the user now lives in flatID.
func (s *Store) SetSharedFlat(ctx context.Context, userID, flatID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, userID, bson.M{"$set": bson.M{
		"has_shared_flat": true,
		"shared_flat_id":  flatID,
		"updated_at":      time.Now().UTC(),
	}})
	return err
}

// ClearSharedFlat drops the membership pointer of every user in ids.
func (s *Store) ClearSharedFlat(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{
			"$set":   bson.M{"has_shared_flat": false, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"shared_flat_id": ""},
		},
	)
	return err
}

// SetJoinRequestPending sets or clears the user's pending-request flag.
func (s *Store) SetJoinRequestPending(ctx context.Context, userID primitive.ObjectID, pending bool) error {
	_, err := s.c.UpdateByID(ctx, userID, bson.M{"$set": bson.M{
		"join_request_pending": pending,
		"updated_at":           time.Now().UTC(),
	}})
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
