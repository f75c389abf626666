// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile is the public part of a user shown to flatmates.
type Profile struct {
	Name    string `bson:"name" json:"name"`
	Picture string `bson:"picture,omitempty" json:"picture,omitempty"`
	Age     int    `bson:"age,omitempty" json:"age,omitempty"`
}

// User is owned by the account system. FlatHub only reads the profile and
// maintains the membership pointers.
//
// NOTE:
//   - HasSharedFlat/SharedFlatID mirror the flat's residents list; the flat
//     document is authoritative.
//   - JoinRequestPending is true while the user has a pending join request.
type User struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email   string             `bson:"email" json:"email"`
	Profile Profile            `bson:"profile" json:"profile"`

	HasSharedFlat      bool                `bson:"has_shared_flat" json:"has_shared_flat"`
	SharedFlatID       *primitive.ObjectID `bson:"shared_flat_id,omitempty" json:"shared_flat_id,omitempty"`
	JoinRequestPending bool                `bson:"join_request_pending" json:"join_request_pending"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
