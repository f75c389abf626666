// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureSharedFlats(ctx, db); err != nil {
		problems = append(problems, "shared_flats: "+err.Error())
	}
	if err := ensureJoinRequests(ctx, db); err != nil {
		problems = append(problems, "join_requests: "+err.Error())
	}
	// events carry the chain-number backstop; a failure here leaves appends unguarded
	if err := ensureEvents(ctx, db); err != nil {
		problems = append(problems, "events: "+err.Error())
	}
	if err := ensureNotifications(ctx, db); err != nil {
		problems = append(problems, "notifications: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name    string `bson:"name"`
	Key     bson.D `bson:"key"`
	Unique  *bool  `bson:"unique,omitempty"`
	Partial bson.D `bson:"partialFilterExpression,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// partialSig renders a partial filter expression for comparison. Nested
// documents are flattened with their key paths.
func partialSig(v interface{}) string {
	switch d := v.(type) {
	case nil:
		return ""
	case bson.D:
		if len(d) == 0 {
			return ""
		}
		parts := make([]string, 0, len(d))
		for _, kv := range d {
			parts = append(parts, kv.Key+"="+partialSig(kv.Value))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case bson.M:
		dd := make(bson.D, 0, len(d))
		for k, val := range d {
			dd = append(dd, bson.E{Key: k, Value: val})
		}
		return partialSig(dd)
	default:
		return fmt.Sprintf("%v", d)
	}
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// desired is the comparable shape of a requested index.
type desired struct {
	name    string
	unique  *bool
	keys    string
	partial string
}

func describe(m mongo.IndexModel) desired {
	d := desired{keys: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		d.unique = m.Options.Unique
		if m.Options.PartialFilterExpression != nil {
			d.partial = partialSig(m.Options.PartialFilterExpression)
		}
	}
	return d
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{} // key sig -> index
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		want := describe(m)
		start := time.Now()
		zap.L().Info("ensuring index",
			zap.String("collection", coll.Name()),
			zap.String("name", want.name),
			zap.String("keys", want.keys),
			zap.Bool("unique", want.unique != nil && *want.unique))

		ex, found := listExisting(ctx, coll)[want.keys]
		if found {
			sameOpts := sameBoolPtr(want.unique, ex.Unique) && partialSig(ex.Partial) == want.partial
			if sameOpts && (want.name == "" || ex.Name == want.name) {
				zap.L().Info("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", want.keys),
					zap.String("took", time.Since(start).String()))
				continue
			}

			// Name or options differ: drop and recreate with the desired shape.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				zap.L().Warn("drop existing index failed",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", want.keys),
					zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), want.name, err))
				continue
			}
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil {
			if isDuplicateKeyErr(err) && want.unique != nil && *want.unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)%s",
					coll.Name(), want.name, duplicateHint(coll.Name(), want.keys)))
				continue
			}
			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", want.name),
				zap.String("keys", want.keys),
				zap.String("took", time.Since(start).String()),
				zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), want.name, err))
			continue
		}

		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", want.name),
			zap.String("created_name", created),
			zap.String("keys", want.keys),
			zap.Bool("recreated", found),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// duplicateHint suggests a query that finds the offending documents.
func duplicateHint(coll, keys string) string {
	switch {
	case coll == "users" && strings.Contains(keys, "email:1"):
		return ": duplicates exist on users.email. Example finder:\n" +
			`db.users.aggregate([{ $group: { _id: "$email", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`
	case coll == "events" && strings.Contains(keys, "number:1"):
		return ": a shared flat has two entries with the same number. Example finder:\n" +
			`db.events.aggregate([{ $group: { _id: { f: "$shared_flat_id", n: "$number" }, c: { $sum: 1 } } }, { $match: { c: { $gt: 1 } } }])`
	}
	return ""
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Residents of a flat (cleared together when the flat is deleted)
		{
			Keys:    bson.D{{Key: "shared_flat_id", Value: 1}},
			Options: options.Index().SetName("idx_users_shared_flat"),
		},
	})
}

func ensureSharedFlats(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("shared_flats")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Flat names are unique, case/diacritics folded.
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_shared_flats_nameci"),
		},
		// FindByResident
		{
			Keys:    bson.D{{Key: "residents.user_id", Value: 1}},
			Options: options.Index().SetName("idx_shared_flats_resident"),
		},
		// Public listing with the "available only" filter, sorted by name.
		{
			Keys: bson.D{
				{Key: "private", Value: 1},
				{Key: "full", Value: 1},
				{Key: "name_ci", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_shared_flats_private_full_nameci_id"),
		},
	})
}

func ensureJoinRequests(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("join_requests")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// At most one pending request per user, system-wide.
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_join_requests_pending_user").
				SetPartialFilterExpression(bson.D{{Key: "status", Value: "pending"}}),
		},
		{
			Keys: bson.D{
				{Key: "shared_flat_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "requested_at", Value: -1},
			},
			Options: options.Index().SetName("idx_join_requests_flat_status_requested"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "requested_at", Value: -1}},
			Options: options.Index().SetName("idx_join_requests_user_requested"),
		},
	})
}

func ensureEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Chain numbers are gapless and unique per flat.
		{
			Keys:    bson.D{{Key: "shared_flat_id", Value: 1}, {Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_events_flat_number"),
		},
		// Head lookup
		{
			Keys: bson.D{
				{Key: "shared_flat_id", Value: 1},
				{Key: "last", Value: 1},
				{Key: "number", Value: -1},
			},
			Options: options.Index().SetName("idx_events_flat_last_number"),
		},
		// Type-filtered listing and the latest expense lookup
		{
			Keys: bson.D{
				{Key: "shared_flat_id", Value: 1},
				{Key: "type", Value: 1},
				{Key: "number", Value: -1},
			},
			Options: options.Index().SetName("idx_events_flat_type_number"),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("notifications")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_notifications_user_created"),
		},
		// Unread badge counts and the unread-only list
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "readed", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_notifications_user_readed_created"),
		},
	})
}
