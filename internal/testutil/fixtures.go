package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user without a flat.
func (f *Fixtures) CreateUser(ctx context.Context, name, email string, age int) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Profile:   models.Profile{Name: name, Age: age},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateUsers inserts n users named "<prefix> <i>".
func (f *Fixtures) CreateUsers(ctx context.Context, prefix string, n int) []models.User {
	f.t.Helper()
	out := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.CreateUser(ctx,
			fmt.Sprintf("%s %d", prefix, i),
			fmt.Sprintf("%s%d@example.com", prefix, i),
			20+i))
	}
	return out
}

// CreateFlat inserts a public flat founded by founder and points the
// founder's user record at it.
func (f *Fixtures) CreateFlat(ctx context.Context, founder models.User, name string, size int) models.SharedFlat {
	f.t.Helper()

	flat, err := models.NewSharedFlat(founder, models.NewSharedFlatInput{
		Name:          name,
		Size:          size,
		PricePerMonth: 45000,
		Location: models.Location{
			Street:     "1 Test Street",
			PostalCode: "75001",
			City:       "Paris",
			Country:    "FR",
		},
	}, time.Now().UTC())
	if err != nil {
		f.t.Fatalf("failed to build test flat: %v", err)
	}
	flat.NameCI = text.Fold(name)

	if _, err := f.db.Collection("shared_flats").InsertOne(ctx, flat); err != nil {
		f.t.Fatalf("failed to create test flat: %v", err)
	}
	f.setMembership(ctx, founder.ID, flat.ID)
	return flat
}

// AddResident appends u to the flat as a default resident, bypassing the
// join workflow.
func (f *Fixtures) AddResident(ctx context.Context, flat models.SharedFlat, u models.User) models.SharedFlat {
	f.t.Helper()

	if err := flat.AddResident(u, models.RoleDefault, time.Now().UTC()); err != nil {
		f.t.Fatalf("failed to add test resident: %v", err)
	}
	if _, err := f.db.Collection("shared_flats").ReplaceOne(ctx, bson.M{"_id": flat.ID}, flat); err != nil {
		f.t.Fatalf("failed to save test flat: %v", err)
	}
	f.setMembership(ctx, u.ID, flat.ID)
	return flat
}

func (f *Fixtures) setMembership(ctx context.Context, userID, flatID primitive.ObjectID) {
	f.t.Helper()
	_, err := f.db.Collection("users").UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"has_shared_flat": true, "shared_flat_id": flatID}},
	)
	if err != nil {
		f.t.Fatalf("failed to set test membership: %v", err)
	}
}
