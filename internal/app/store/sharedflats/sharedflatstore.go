// internal/app/store/sharedflats/sharedflatstore.go
package sharedflatstore

import (
	"context"
	"errors"

	"github.com/dalemusser/flathub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("shared_flats")}
}

var (
	// ErrDuplicateName is returned when another flat already uses the name.
	ErrDuplicateName = errors.New("a shared flat with this name already exists")
	// ErrConcurrentUpdate is returned by SaveMembership when the stored
	// residents count no longer matches the caller's snapshot.
	ErrConcurrentUpdate = errors.New("shared flat membership changed concurrently")
)

// Create inserts a flat built by models.NewSharedFlat.
func (s *Store) Create(ctx context.Context, f models.SharedFlat) (models.SharedFlat, error) {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	f.NameCI = text.Fold(f.Name)
	if _, err := s.c.InsertOne(ctx, f); err != nil {
		if wafflemongo.IsDup(err) {
			return models.SharedFlat{}, ErrDuplicateName
		}
		return models.SharedFlat{}, err
	}
	return f, nil
}

// GetByID returns mongo.ErrNoDocuments if the flat does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.SharedFlat, error) {
	var f models.SharedFlat
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return models.SharedFlat{}, err
	}
	return f, nil
}

// GetByName looks a flat up by case- and diacritic-insensitive name.
func (s *Store) GetByName(ctx context.Context, name string) (models.SharedFlat, error) {
	var f models.SharedFlat
	if err := s.c.FindOne(ctx, bson.M{"name_ci": text.Fold(name)}).Decode(&f); err != nil {
		return models.SharedFlat{}, err
	}
	return f, nil
}

// FindByResident returns the flat userID lives in, or mongo.ErrNoDocuments.
func (s *Store) FindByResident(ctx context.Context, userID primitive.ObjectID) (models.SharedFlat, error) {
	var f models.SharedFlat
	if err := s.c.FindOne(ctx, bson.M{"residents.user_id": userID}).Decode(&f); err != nil {
		return models.SharedFlat{}, err
	}
	return f, nil
}

// ListFilter narrows List.
type ListFilter struct {
	IncludePrivate bool
	OnlyAvailable  bool // exclude full flats
	Limit          int64
}

// List returns flats ordered by name.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.SharedFlat, error) {
	filter := bson.M{}
	if !f.IncludePrivate {
		filter["private"] = false
	}
	if f.OnlyAvailable {
		filter["full"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var flats []models.SharedFlat
	if err := cur.All(ctx, &flats); err != nil {
		return nil, err
	}
	return flats, nil
}

// SaveMembership persists the residents list and every derived field.
// The write only lands if the stored count_residents still equals
// prevCount, so two writers working from the same snapshot cannot both win.
func (s *Store) SaveMembership(ctx context.Context, f models.SharedFlat, prevCount int) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": f.ID, "count_residents": prevCount},
		bson.M{"$set": bson.M{
			"residents":            f.Residents,
			"count_residents":      f.CountResidents,
			"full":                 f.Full,
			"residents_years_rate": f.ResidentsYearsRate,
			"updated_at":           f.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// Delete removes a flat by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
