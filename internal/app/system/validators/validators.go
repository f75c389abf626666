// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/flathub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the collections FlatHub writes to and attaches a
// JSON-Schema validator to each. Servers without collMod support (some
// DocumentDB versions) keep the collections and skip the validators.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	schemas := []struct {
		coll   string
		schema bson.M
	}{
		{"users", usersSchema()},
		{"shared_flats", sharedFlatsSchema()},
		{"join_requests", joinRequestsSchema()},
		// The ledger and notifications are never repaired after insert, so
		// bad writes are rejected at the server.
		{"events", eventsSchema()},
		{"notifications", notificationsSchema()},
	}

	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var problems []string
	for _, s := range schemas {
		if err := ensure(ctx, db, s.coll, s.schema, have[s.coll]); err != nil {
			problems = append(problems, s.coll+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensure(ctx context.Context, db *mongo.Database, coll string, schema bson.M, exists bool) error {
	if !exists {
		if err := db.CreateCollection(ctx, coll); err != nil && !hasCode(err, 48, "already exists") {
			return err
		}
		zap.L().Info("created collection", zap.String("collection", coll))
	}

	cmd := bson.D{
		{Key: "collMod", Value: coll},
		{Key: "validator", Value: schema},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		if hasCode(err, 59, "no such command") || hasCode(err, 115, "not implemented", "not supported") {
			zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
			return nil
		}
		return err
	}
	zap.L().Debug("validator ensured", zap.String("collection", coll))
	return nil
}

// hasCode reports whether err is a server command error with the given code,
// or mentions one of the phrases.
func hasCode(err error, code int32, phrases ...string) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

/* ------------------------- JSON-Schema docs ---------------------- */

// integer accepts both widths; the driver writes Go int as int32 when it fits.
var integer = bson.M{"bsonType": bson.A{"int", "long"}}

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "profile", "has_shared_flat", "join_request_pending"},
			"properties": bson.M{
				"email": nonBlank,
				"profile": bson.M{
					"bsonType": "object",
					"required": bson.A{"name"},
					"properties": bson.M{
						"name":    bson.M{"bsonType": "string"},
						"picture": bson.M{"bsonType": "string"},
						"age":     integer,
					},
				},
				"has_shared_flat":      bson.M{"bsonType": "bool"},
				"shared_flat_id":       bson.M{"bsonType": bson.A{"objectId", "null"}},
				"join_request_pending": bson.M{"bsonType": "bool"},
			},
		},
	}
}

func sharedFlatsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "size", "full", "residents", "count_residents", "location"},
			"properties": bson.M{
				"name":    nonBlank,
				"name_ci": nonBlank,
				"private": bson.M{"bsonType": "bool"},
				"size":    bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
				"full":    bson.M{"bsonType": "bool"},
				"residents": bson.M{
					"bsonType": "array",
					"minItems": 1,
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"user_id", "role", "joined_at"},
						"properties": bson.M{
							"user_id":   bson.M{"bsonType": "objectId"},
							"role":      bson.M{"enum": bson.A{models.RoleAdmin, models.RoleDefault}},
							"joined_at": bson.M{"bsonType": "date"},
						},
					},
				},
				"count_residents":      bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
				"residents_years_rate": bson.M{"bsonType": bson.A{"double", "int", "long"}},
				"price_per_month":      bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"location": bson.M{
					"bsonType": "object",
					"required": bson.A{"street", "postal_code", "city", "country"},
					"properties": bson.M{
						"street":      nonBlank,
						"postal_code": nonBlank,
						"city":        nonBlank,
						"country":     nonBlank,
					},
				},
			},
		},
	}
}

func joinRequestsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "shared_flat_id", "requested_at", "status"},
			"properties": bson.M{
				"user_id":        bson.M{"bsonType": "objectId"},
				"shared_flat_id": bson.M{"bsonType": "objectId"},
				"requested_at":   bson.M{"bsonType": "date"},
				"status":         bson.M{"enum": bson.A{models.JoinPending, models.JoinAccepted, models.JoinRejected}},
				"resolved_at":    bson.M{"bsonType": "date"},
			},
		},
	}
}

func eventsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"number", "shared_flat_id", "created_at", "last", "type"},
			"properties": bson.M{
				"number":            bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"shared_flat_id":    bson.M{"bsonType": "objectId"},
				"previous_entry_id": bson.M{"bsonType": "objectId"},
				"created_at":        bson.M{"bsonType": "date"},
				"last":              bson.M{"bsonType": "bool"},
				"type":              bson.M{"enum": bson.A{models.EventPlain, models.EventExpense, models.EventNeed}},
				"expense": bson.M{
					"bsonType": "object",
					"required": bson.A{"amount", "total_amount_at_this_time"},
					"properties": bson.M{
						"amount":                    integer,
						"total_amount_at_this_time": integer,
					},
				},
				"need": bson.M{
					"bsonType": "object",
					"required": bson.A{"expire_at"},
					"properties": bson.M{
						"expire_at": bson.M{"bsonType": "date"},
					},
				},
			},
		},
	}
}

func notificationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "message", "type", "created_at", "readed"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"message":    nonBlank,
				"type":       bson.M{"enum": bson.A{models.NotifyAlert, models.NotifySuccess, models.NotifyInfo}},
				"created_at": bson.M{"bsonType": "date"},
				"readed":     bson.M{"bsonType": "bool"},
			},
		},
	}
}
